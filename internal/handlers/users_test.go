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

func newUserRouter(svc services.UserService, opts ...UserOption) chi.Router {
	router := chi.NewRouter()
	router.Route("/user", NewUserHandlers(nil, svc, opts...).Routes)
	return router
}

func TestUserHandlersRegister(t *testing.T) {
	svc := &stubUserService{
		registerFunc: func(_ context.Context, cmd services.RegisterUserCommand) (services.AuthResult, error) {
			if cmd.Name != "Ada" || cmd.Email != "ada@example.com" || cmd.Password != "s3cretpass" {
				t.Fatalf("unexpected command %#v", cmd)
			}
			return services.AuthResult{
				User:  services.User{ID: "usr_1", Name: "Ada", Email: "ada@example.com", PasswordHash: "hash"},
				Token: "token-1",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/user/register", strings.NewReader(`{"name":"Ada","email":"ada@example.com","password":"s3cretpass"}`))
	rr := httptest.NewRecorder()
	newUserRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "hash") {
		t.Fatalf("password hash leaked: %s", rr.Body.String())
	}
	var body struct {
		Token string      `json:"token"`
		User  userPayload `json:"user"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Token != "token-1" || body.User.ID != "usr_1" {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestUserHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"duplicate email", "/user/register", fmt.Errorf("%w: ada@example.com", services.ErrUserConflict), http.StatusConflict},
		{"weak password", "/user/register", fmt.Errorf("%w: password too short", services.ErrUserInvalidInput), http.StatusBadRequest},
		{"bad credentials", "/user/login", services.ErrUserUnauthenticated, http.StatusUnauthorized},
		{"admin bad credentials", "/user/admin", services.ErrUserUnauthenticated, http.StatusUnauthorized},
		{"store down", "/user/login", fmt.Errorf("%w: timeout", services.ErrUserUnavailable), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubUserService{
				registerFunc: func(context.Context, services.RegisterUserCommand) (services.AuthResult, error) {
					return services.AuthResult{}, tc.err
				},
				loginFunc: func(context.Context, string, string) (services.AuthResult, error) {
					return services.AuthResult{}, tc.err
				},
				adminFunc: func(context.Context, string, string) (services.AuthResult, error) {
					return services.AuthResult{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(`{"email":"ada@example.com","password":"x"}`))
			rr := httptest.NewRecorder()
			newUserRouter(svc).ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestUserHandlersAdminLoginReturnsTokenOnly(t *testing.T) {
	svc := &stubUserService{
		adminFunc: func(_ context.Context, email, password string) (services.AuthResult, error) {
			return services.AuthResult{Token: "admin-token"}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/user/admin", strings.NewReader(`{"email":"admin@example.com","password":"pw"}`))
	rr := httptest.NewRecorder()
	newUserRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["token"] != "admin-token" {
		t.Fatalf("unexpected token %v", body["token"])
	}
	if _, ok := body["user"]; ok {
		t.Fatalf("admin login must not return a user")
	}
}

func TestUserHandlersLoginRateLimited(t *testing.T) {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	svc := &stubUserService{
		loginFunc: func(context.Context, string, string) (services.AuthResult, error) {
			calls++
			return services.AuthResult{}, services.ErrUserUnauthenticated
		},
	}
	router := newUserRouter(svc, WithCredentialRateLimit(2, time.Minute, func() time.Time { return now }))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
		req.RemoteAddr = "203.0.113.7:5555"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if calls != 2 {
		t.Fatalf("expected limiter to stop the third attempt, got %d calls", calls)
	}

	req := httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
	req.RemoteAddr = "198.51.100.2:5555"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected other clients to be unaffected, got %d", rr.Code)
	}
}

func TestUserHandlersProfileAndShipping(t *testing.T) {
	svc := &stubUserService{
		profileFunc: func(_ context.Context, userID string) (services.User, error) {
			return services.User{ID: userID, Name: "Ada"}, nil
		},
		shippingFunc: func(_ context.Context, userID string, profile services.ShippingProfile) (services.User, error) {
			if profile.FirstName != "Ada" || profile.Zipcode != "N1" {
				t.Fatalf("unexpected profile %#v", profile)
			}
			return services.User{ID: userID, Name: "Ada", Shipping: &profile}, nil
		},
	}
	router := newUserRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/user/profile", nil), "usr_1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	body := `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","street":"1 Way","city":"London","state":"LDN","zipcode":"N1","country":"UK","phone":"+44"}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPut, "/user/profile/shipping", strings.NewReader(body)), "usr_1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		User userPayload `json:"user"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.User.Shipping == nil || payload.User.Shipping.City != "London" {
		t.Fatalf("expected shipping profile in response, got %#v", payload.User)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user/profile", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}
