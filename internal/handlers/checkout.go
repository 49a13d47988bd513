package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/platform/httpx"
	"github.com/closetline/api/internal/services"
)

// CheckoutHandlers turn the caller's cart into an order.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	idempotency func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency wraps both place-order endpoints with the idempotency middleware.
// It runs after authentication so keys are scoped per user.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{authn: authn, checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the place-order endpoints onto the /order group.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleUser))
		}
		if h.idempotency != nil {
			g.Use(h.idempotency)
		}
		g.Post("/place-order", h.placeCashOnDelivery)
		g.Post("/place-order/stripe", h.placeCard)
	})
}

type cardCheckoutRequest struct {
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

func (h *CheckoutHandlers) placeCashOnDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout_unavailable", "checkout service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	order, err := h.checkout.PlaceCashOnDeliveryOrder(ctx, userID)
	if err != nil {
		writeCheckoutError(ctx, w, err, "")
		return
	}
	writeSuccess(w, http.StatusCreated, "Order placed", map[string]any{"order": buildOrderPayload(order)})
}

func (h *CheckoutHandlers) placeCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout_unavailable", "checkout service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	var req cardCheckoutRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req, true); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	result, err := h.checkout.PlaceCardOrder(ctx, services.PlaceCardOrderCommand{
		UserID:     userID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err, result.Order.ID)
		return
	}
	writeSuccess(w, http.StatusCreated, "Checkout session created", map[string]any{
		"session_url": result.SessionURL,
		"session_id":  result.SessionID,
		"order":       buildOrderPayload(result.Order),
	})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error, orderID string) {
	switch {
	case errors.Is(err, services.ErrCheckoutPrecondition):
		httpx.WriteError(ctx, w, httpx.NewError(errorDetail(err, services.ErrCheckoutPrecondition), "checkout requirements not met", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorDetail(err, services.ErrCheckoutInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutPaymentSession):
		apiErr := httpx.NewError("payment_session_failed", "unable to start card payment; the order was kept unpaid", http.StatusInternalServerError)
		if orderID != "" {
			apiErr = apiErr.WithDetails(map[string]any{"order_id": orderID})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, services.ErrCheckoutUnavailable):
		serviceUnavailable(ctx, w, "checkout_unavailable", "checkout service is unavailable")
	default:
		writeOrderError(ctx, w, err)
	}
}
