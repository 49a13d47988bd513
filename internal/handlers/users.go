package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/platform/httpx"
	"github.com/closetline/api/internal/services"
)

const maxUserBodySize = 8 * 1024

// UserHandlers exposes registration, login and profile endpoints.
type UserHandlers struct {
	authn   *auth.Authenticator
	users   services.UserService
	limiter rateLimiter
}

// UserOption customises UserHandlers.
type UserOption func(*UserHandlers)

// WithCredentialRateLimit caps register and login attempts per client IP within window.
func WithCredentialRateLimit(limit int, window time.Duration, clock func() time.Time) UserOption {
	return func(h *UserHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, clock)
	}
}

// NewUserHandlers constructs user handlers.
func NewUserHandlers(authn *auth.Authenticator, users services.UserService, opts ...UserOption) *UserHandlers {
	h := &UserHandlers{authn: authn, users: users}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /user endpoints.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		g.Use(limitByClientIP(h.limiter))
		g.Post("/register", h.register)
		g.Post("/login", h.login)
		g.Post("/admin", h.adminLogin)
	})
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleUser))
		}
		g.Get("/profile", h.profile)
		g.Put("/profile/shipping", h.updateShipping)
	})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type shippingProfilePayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

type userPayload struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Email     string                  `json:"email"`
	Shipping  *shippingProfilePayload `json:"shipping,omitempty"`
	CreatedAt string                  `json:"created_at,omitempty"`
}

func (h *UserHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user_service_unavailable", "user service is unavailable")
		return
	}
	var req registerRequest
	if err := decodeJSONBody(r, maxUserBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	result, err := h.users.Register(ctx, services.RegisterUserCommand{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Account created", map[string]any{
		"token": result.Token,
		"user":  buildUserPayload(result.User),
	})
}

func (h *UserHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user_service_unavailable", "user service is unavailable")
		return
	}
	var req loginRequest
	if err := decodeJSONBody(r, maxUserBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	result, err := h.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Logged in", map[string]any{
		"token": result.Token,
		"user":  buildUserPayload(result.User),
	})
}

func (h *UserHandlers) adminLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user_service_unavailable", "user service is unavailable")
		return
	}
	var req loginRequest
	if err := decodeJSONBody(r, maxUserBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	result, err := h.users.AdminLogin(ctx, req.Email, req.Password)
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Logged in", map[string]any{"token": result.Token})
}

func (h *UserHandlers) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user_service_unavailable", "user service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(ctx, userID)
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile fetched", map[string]any{"user": buildUserPayload(user)})
}

func (h *UserHandlers) updateShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user_service_unavailable", "user service is unavailable")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	var req shippingProfilePayload
	if err := decodeJSONBody(r, maxUserBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	user, err := h.users.UpdateShippingProfile(ctx, userID, services.ShippingProfile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Street:    req.Street,
		City:      req.City,
		State:     req.State,
		Zipcode:   req.Zipcode,
		Country:   req.Country,
		Phone:     req.Phone,
	})
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Shipping profile saved", map[string]any{"user": buildUserPayload(user)})
}

func (h *UserHandlers) writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorDetail(err, services.ErrUserInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid email or password", http.StatusUnauthorized))
	case errors.Is(err, services.ErrUserConflict):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "an account with this email already exists", http.StatusConflict))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserUnavailable):
		serviceUnavailable(ctx, w, "user_service_unavailable", "user service is unavailable")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "failed to process user request", http.StatusInternalServerError))
	}
}

func buildUserPayload(user services.User) userPayload {
	payload := userPayload{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: formatTime(user.CreatedAt),
	}
	if user.Shipping != nil {
		shipping := buildShippingPayload(*user.Shipping)
		payload.Shipping = &shipping
	}
	return payload
}

func buildShippingPayload(p services.ShippingProfile) shippingProfilePayload {
	return shippingProfilePayload{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Street:    p.Street,
		City:      p.City,
		State:     p.State,
		Zipcode:   p.Zipcode,
		Country:   p.Country,
		Phone:     p.Phone,
	}
}
