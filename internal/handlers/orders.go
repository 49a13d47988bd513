package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/platform/httpx"
	"github.com/closetline/api/internal/platform/pagination"
	"github.com/closetline/api/internal/services"
)

const maxOrderBodySize = 4 * 1024

// OrderHandlers exposes order history for users and fulfilment endpoints for admins.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes wires the order read and status endpoints onto the /order group.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleUser))
		}
		g.Get("/user-orders", h.userOrders)
	})
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleAdmin))
		}
		g.Get("/orders", h.listOrders)
		g.Put("/update-status", h.updateStatus)
		g.Put("/update-status/cod", h.markCashOnDeliveryPaid)
	})
}

type updateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (h *OrderHandlers) userOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order_service_unavailable", "order service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	orders, err := h.orders.ListUserOrders(ctx, userID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Orders fetched", map[string]any{"orders": buildOrderPayloads(orders)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order_service_unavailable", "order service is unavailable")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.orders.ListOrders(ctx, services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	fields := map[string]any{"orders": buildOrderPayloads(page.Items)}
	if page.NextPageToken != "" {
		fields["next_page_token"] = page.NextPageToken
	}
	writeSuccess(w, http.StatusOK, "Orders fetched", fields)
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order_service_unavailable", "order service is unavailable")
		return
	}
	var req updateStatusRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	order, err := h.orders.UpdateShippingStatus(ctx, req.OrderID, req.Status)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Status updated", map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) markCashOnDeliveryPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order_service_unavailable", "order service is unavailable")
		return
	}
	var req updateStatusRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	order, err := h.orders.MarkCashOnDeliveryPaid(ctx, req.OrderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Payment recorded", map[string]any{"order": buildOrderPayload(order)})
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorDetail(err, services.ErrOrderInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", errorDetail(err, services.ErrOrderInvalidState), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		serviceUnavailable(ctx, w, "order_service_unavailable", "order service is unavailable")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

type orderItemPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Size      string  `json:"size"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	ImageURL  string  `json:"image_url,omitempty"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Items           []orderItemPayload     `json:"items"`
	Shipping        shippingProfilePayload `json:"shipping"`
	Subtotal        float64                `json:"subtotal"`
	Tax             float64                `json:"tax"`
	ShippingFee     float64                `json:"shipping_fee"`
	Total           float64                `json:"total"`
	PaymentMethod   string                 `json:"payment_method"`
	PaymentStatus   string                 `json:"payment_status"`
	ShippingStatus  string                 `json:"shipping_status"`
	PaidAt          string                 `json:"paid_at,omitempty"`
	StripeSessionID string                 `json:"stripe_session_id,omitempty"`
	CreatedAt       string                 `json:"created_at,omitempty"`
	UpdatedAt       string                 `json:"updated_at,omitempty"`
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order))
	}
	return out
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		UserID:          order.UserID,
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		Shipping:        buildShippingPayload(order.Shipping),
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		ShippingFee:     order.ShippingFee,
		Total:           order.Total,
		PaymentMethod:   string(order.PaymentMethod),
		PaymentStatus:   string(order.PaymentStatus),
		ShippingStatus:  string(order.ShippingStatus),
		StripeSessionID: order.StripeSessionID,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
	if order.PaidAt != nil {
		payload.PaidAt = formatTime(*order.PaidAt)
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return payload
}
