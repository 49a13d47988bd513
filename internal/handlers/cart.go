package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/platform/httpx"
	"github.com/closetline/api/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

const maxCartBodySize = 4 * 1024

// NewCartHandlers constructs handlers requiring a user token before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		g.Post("/add-to-cart/{productId}", h.addItem)
		g.Put("/update-cart/{productId}", h.updateItem)
		g.Delete("/remove-item/{productId}", h.removeItem)
		g.Post("/getUserCart", h.getCart)
	})
}

type addCartItemRequest struct {
	Size string `json:"size"`
}

type updateCartItemRequest struct {
	Size     *string `json:"size"`
	NewSize  *string `json:"newSize"`
	Quantity *int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart_service_unavailable", "cart service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    userID,
		ProductID: chi.URLParam(r, "productId"),
		Size:      req.Size,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart.UserID, cart.UpdatedAt)
	writeSuccess(w, http.StatusOK, "Added to cart", map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart_service_unavailable", "cart service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		UserID:    userID,
		ProductID: chi.URLParam(r, "productId"),
		Size:      req.Size,
		NewSize:   req.NewSize,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart.UserID, cart.UpdatedAt)
	writeSuccess(w, http.StatusOK, "Cart updated", map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart_service_unavailable", "cart service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID:    userID,
		ProductID: chi.URLParam(r, "productId"),
		Size:      req.Size,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart.UserID, cart.UpdatedAt)
	writeSuccess(w, http.StatusOK, "Item removed", map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart_service_unavailable", "cart service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, view.UserID, view.UpdatedAt)
	writeSuccess(w, http.StatusOK, "Cart fetched", map[string]any{"cart": buildCartViewPayload(view)})
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorDetail(err, services.ErrCartInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", errorDetail(err, services.ErrCartNotFound), http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		serviceUnavailable(ctx, w, "cart_service_unavailable", "cart service is unavailable")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart", http.StatusInternalServerError))
	}
}

type cartPayload struct {
	UserID    string            `json:"user_id"`
	Items     []cartItemPayload `json:"items"`
	Totals    cartTotalsPayload `json:"totals"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	UnitPrice float64         `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"image_url,omitempty"`
	AddedAt   string          `json:"added_at,omitempty"`
	Product   *productPayload `json:"product,omitempty"`
}

type cartTotalsPayload struct {
	Quantity int     `json:"quantity"`
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		UserID:    cart.UserID,
		Items:     make([]cartItemPayload, 0, len(cart.Items)),
		Totals:    buildCartTotals(cart.Totals),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, buildCartItem(item))
	}
	return payload
}

func buildCartViewPayload(view services.CartView) cartPayload {
	payload := cartPayload{
		UserID:    view.UserID,
		Items:     make([]cartItemPayload, 0, len(view.Lines)),
		Totals:    buildCartTotals(view.Totals),
		UpdatedAt: formatTime(view.UpdatedAt),
	}
	for _, line := range view.Lines {
		item := buildCartItem(line.Item)
		if line.Product != nil {
			product := buildProductPayload(*line.Product)
			item.Product = &product
		}
		payload.Items = append(payload.Items, item)
	}
	return payload
}

func buildCartItem(item services.CartItem) cartItemPayload {
	return cartItemPayload{
		ProductID: item.ProductID,
		Name:      item.Name,
		Size:      item.Size,
		UnitPrice: item.UnitPrice,
		Quantity:  item.Quantity,
		ImageURL:  item.ImageURL,
		AddedAt:   formatTime(item.AddedAt),
	}
}

func buildCartTotals(totals services.CartTotals) cartTotalsPayload {
	return cartTotalsPayload{
		Quantity: totals.Quantity,
		Subtotal: totals.Subtotal,
		Tax:      totals.Tax,
		Shipping: totals.Shipping,
		Total:    totals.Total,
	}
}

func setCartResponseHeaders(w http.ResponseWriter, userID string, updatedAt time.Time) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if updatedAt.IsZero() {
		return
	}
	w.Header().Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	if etag := buildCartETag(userID, updatedAt); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartETag(userID string, updatedAt time.Time) string {
	if strings.TrimSpace(userID) == "" || updatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d", strings.TrimSpace(userID), updatedAt.UTC().UnixNano())
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
