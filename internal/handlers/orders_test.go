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

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/services"
)

func newOrderRouter(authn *auth.Authenticator, svc services.OrderService) chi.Router {
	router := chi.NewRouter()
	router.Route("/order", NewOrderHandlers(authn, svc).Routes)
	return router
}

func TestOrderHandlersUserOrders(t *testing.T) {
	paidAt := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	svc := &stubOrderService{
		listUserFunc: func(_ context.Context, userID string) ([]services.Order, error) {
			if userID != "usr_1" {
				t.Fatalf("unexpected user %q", userID)
			}
			order := placedOrder("ord_1", domain.PaymentMethodCard)
			order.PaymentStatus = domain.PaymentStatusPaid
			order.PaidAt = &paidAt
			return []services.Order{order}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/order/user-orders", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rr := httptest.NewRecorder()
	newOrderRouter(tokenAuthenticator(), svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Orders []orderPayload `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Orders) != 1 || body.Orders[0].PaidAt != "2025-04-02T12:00:00Z" {
		t.Fatalf("unexpected orders %#v", body.Orders)
	}
}

func TestOrderHandlersAdminRoutesRejectUsers(t *testing.T) {
	svc := &stubOrderService{}
	router := newOrderRouter(tokenAuthenticator(), svc)

	req := httptest.NewRequest(http.MethodGet, "/order/orders", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/order/orders", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestOrderHandlersListOrdersPaginates(t *testing.T) {
	svc := &stubOrderService{
		listFunc: func(_ context.Context, pager services.Pagination) (domain.CursorPage[services.Order], error) {
			if pager.PageSize != 5 {
				t.Fatalf("expected page size 5, got %d", pager.PageSize)
			}
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{placedOrder("ord_9", domain.PaymentMethodCard)},
				NextPageToken: "next",
			}, nil
		},
	}
	router := newOrderRouter(tokenAuthenticator(), svc)

	req := httptest.NewRequest(http.MethodGet, "/order/orders?page_size=5", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["next_page_token"] != "next" {
		t.Fatalf("expected next page token, got %v", body["next_page_token"])
	}

	req = httptest.NewRequest(http.MethodGet, "/order/orders?page_size=abc", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page size, got %d", rr.Code)
	}
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	svc := &stubOrderService{
		updateFunc: func(_ context.Context, orderID, status string) (services.Order, error) {
			if orderID != "ord_1" || status != "SHIPPED" {
				t.Fatalf("unexpected update %s %s", orderID, status)
			}
			order := placedOrder("ord_1", domain.PaymentMethodCard)
			order.ShippingStatus = domain.ShippingStatusShipped
			return order, nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodPut, "/order/update-status", strings.NewReader(`{"orderId":"ord_1","status":"SHIPPED"}`)), "admin", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newOrderRouter(nil, svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersUpdateStatusErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"regression", fmt.Errorf("%w: cannot move backwards", services.ErrOrderInvalidState), http.StatusBadRequest},
		{"unknown status", fmt.Errorf("%w: unknown shipping status", services.ErrOrderInvalidInput), http.StatusBadRequest},
		{"missing order", fmt.Errorf("%w: ord_x", services.ErrOrderNotFound), http.StatusNotFound},
		{"store down", fmt.Errorf("%w: deadline", services.ErrOrderUnavailable), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				updateFunc: func(context.Context, string, string) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			req := withIdentity(httptest.NewRequest(http.MethodPut, "/order/update-status", strings.NewReader(`{"orderId":"ord_1","status":"PLACED"}`)), "admin", auth.RoleAdmin)
			rr := httptest.NewRecorder()
			newOrderRouter(nil, svc).ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestOrderHandlersMarkCashOnDeliveryPaid(t *testing.T) {
	svc := &stubOrderService{
		codFunc: func(_ context.Context, orderID string) (services.Order, error) {
			if orderID != "ord_5" {
				t.Fatalf("unexpected order %q", orderID)
			}
			order := placedOrder(orderID, domain.PaymentMethodCashOnDelivery)
			order.PaymentStatus = domain.PaymentStatusPaid
			order.ShippingStatus = domain.ShippingStatusDelivered
			return order, nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodPut, "/order/update-status/cod", strings.NewReader(`{"orderId":"ord_5"}`)), "admin", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	newOrderRouter(nil, svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Order orderPayload `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Order.ShippingStatus != "DELIVERED" || body.Order.PaymentStatus != "PAID" {
		t.Fatalf("unexpected order %#v", body.Order)
	}
}
