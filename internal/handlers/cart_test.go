package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/closetline/api/internal/services"
)

func newCartRouter(svc services.CartService) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", NewCartHandlers(nil, svc).Routes)
	return router
}

func TestCartHandlersAddItem(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := &stubCartService{
		addFunc: func(_ context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			if cmd.UserID != "usr_1" || cmd.ProductID != "prd_1" || cmd.Size != "M" {
				t.Fatalf("unexpected command %#v", cmd)
			}
			return services.Cart{
				UserID: "usr_1",
				Items: []services.CartItem{
					{ProductID: "prd_1", Name: "Linen Shirt", Size: "M", UnitPrice: 1500, Quantity: 1},
				},
				Totals:    services.CartTotals{Quantity: 1, Subtotal: 1500, Tax: 450, Shipping: 150, Total: 2100},
				UpdatedAt: now,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/cart/add-to-cart/prd_1", strings.NewReader(`{"size":"M"}`))
	req = withIdentity(req, "usr_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("ETag") == "" || rr.Header().Get("Cache-Control") == "" {
		t.Fatalf("expected cache headers, got %v", rr.Header())
	}

	var body struct {
		Success bool        `json:"success"`
		Message string      `json:"message"`
		Cart    cartPayload `json:"cart"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Message == "" {
		t.Fatalf("expected success envelope, got %#v", body)
	}
	if len(body.Cart.Items) != 1 || body.Cart.Totals.Total != 2100 {
		t.Fatalf("unexpected cart payload %#v", body.Cart)
	}
}

func TestCartHandlersRequireIdentity(t *testing.T) {
	svc := &stubCartService{}
	req := httptest.NewRequest(http.MethodPost, "/cart/getUserCart", nil)
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCartHandlersMapValidationErrors(t *testing.T) {
	svc := &stubCartService{
		addFunc: func(context.Context, services.AddCartItemCommand) (services.Cart, error) {
			return services.Cart{}, fmt.Errorf("%w: size XL is not available", services.ErrCartInvalidInput)
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/cart/add-to-cart/prd_1", strings.NewReader(`{"size":"XL"}`)), "usr_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != false || body["message"] != "size XL is not available" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestCartHandlersUpdatePassesOptionalFields(t *testing.T) {
	svc := &stubCartService{
		updateFunc: func(_ context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
			if cmd.Size == nil || *cmd.Size != "M" {
				t.Fatalf("expected size M, got %v", cmd.Size)
			}
			if cmd.NewSize != nil {
				t.Fatalf("expected no new size, got %q", *cmd.NewSize)
			}
			if cmd.Quantity == nil || *cmd.Quantity != 3 {
				t.Fatalf("expected quantity 3, got %v", cmd.Quantity)
			}
			return services.Cart{UserID: cmd.UserID}, nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodPut, "/cart/update-cart/prd_1", strings.NewReader(`{"size":"M","quantity":3}`)), "usr_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersUpdateNotFound(t *testing.T) {
	svc := &stubCartService{
		updateFunc: func(context.Context, services.UpdateCartItemCommand) (services.Cart, error) {
			return services.Cart{}, fmt.Errorf("%w: cart item", services.ErrCartNotFound)
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodPut, "/cart/update-cart/prd_9", strings.NewReader(`{"quantity":2}`)), "usr_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveRequiresBody(t *testing.T) {
	svc := &stubCartService{}
	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/cart/remove-item/prd_1", nil), "usr_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCartHandlersGetCartJoinsProducts(t *testing.T) {
	product := services.Product{ID: "prd_1", Name: "Linen Shirt", Price: 1500, Sizes: []string{"M"}}
	svc := &stubCartService{
		getFunc: func(_ context.Context, userID string) (services.CartView, error) {
			return services.CartView{
				UserID: userID,
				Lines: []services.CartLineView{
					{Item: services.CartItem{ProductID: "prd_1", Size: "M", Quantity: 2}, Product: &product},
					{Item: services.CartItem{ProductID: "prd_gone", Size: "S", Quantity: 1}},
				},
			}, nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/cart/getUserCart", nil), "usr_1")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Cart cartPayload `json:"cart"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Cart.Items) != 2 {
		t.Fatalf("expected two lines, got %d", len(body.Cart.Items))
	}
	if body.Cart.Items[0].Product == nil || body.Cart.Items[0].Product.Name != "Linen Shirt" {
		t.Fatalf("expected joined product, got %#v", body.Cart.Items[0].Product)
	}
	if body.Cart.Items[1].Product != nil {
		t.Fatalf("expected missing product to stay nil")
	}
	if rr.Header().Get("ETag") != "" {
		t.Fatalf("expected no etag for a cart without timestamp")
	}
}
