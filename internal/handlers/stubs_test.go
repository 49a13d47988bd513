package handlers

import (
	"context"
	"net/http"

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/services"
)

func withIdentity(r *http.Request, uid string, roles ...string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

// tokenAuthenticator accepts "user-token" and "admin-token".
func tokenAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(auth.TokenVerifierFunc(func(_ context.Context, token string) (auth.Claims, error) {
		switch token {
		case "user-token":
			return auth.Claims{Subject: "usr_1", Roles: []string{auth.RoleUser}}, nil
		case "admin-token":
			return auth.Claims{Subject: "admin", Roles: []string{auth.RoleAdmin}}, nil
		default:
			return auth.Claims{}, auth.ErrTokenInvalid
		}
	}))
}

type stubCartService struct {
	addFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error)
	removeFunc func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	getFunc    func(ctx context.Context, userID string) (services.CartView, error)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	return s.updateFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	return s.removeFunc(ctx, cmd)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	return s.getFunc(ctx, userID)
}

func (s *stubCartService) ClearCart(context.Context, string) error { return nil }
func (s *stubCartService) RemoveOrderedItems(context.Context, string, []services.CartItem) error {
	return nil
}

type stubOrderService struct {
	services.OrderService
	listUserFunc func(ctx context.Context, userID string) ([]services.Order, error)
	listFunc     func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Order], error)
	updateFunc   func(ctx context.Context, orderID, status string) (services.Order, error)
	codFunc      func(ctx context.Context, orderID string) (services.Order, error)
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID string) ([]services.Order, error) {
	return s.listUserFunc(ctx, userID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	return s.listFunc(ctx, pager)
}

func (s *stubOrderService) UpdateShippingStatus(ctx context.Context, orderID, status string) (services.Order, error) {
	return s.updateFunc(ctx, orderID, status)
}

func (s *stubOrderService) MarkCashOnDeliveryPaid(ctx context.Context, orderID string) (services.Order, error) {
	return s.codFunc(ctx, orderID)
}

type stubCheckoutService struct {
	codFunc  func(ctx context.Context, userID string) (services.Order, error)
	cardFunc func(ctx context.Context, cmd services.PlaceCardOrderCommand) (services.CardCheckoutResult, error)
}

func (s *stubCheckoutService) PlaceCashOnDeliveryOrder(ctx context.Context, userID string) (services.Order, error) {
	return s.codFunc(ctx, userID)
}

func (s *stubCheckoutService) PlaceCardOrder(ctx context.Context, cmd services.PlaceCardOrderCommand) (services.CardCheckoutResult, error) {
	return s.cardFunc(ctx, cmd)
}

type stubWebhookService struct {
	handleFunc func(ctx context.Context, payload []byte, signature string) (services.WebhookResult, error)
}

func (s *stubWebhookService) HandleStripeEvent(ctx context.Context, payload []byte, signature string) (services.WebhookResult, error) {
	return s.handleFunc(ctx, payload, signature)
}

type stubUserService struct {
	registerFunc func(ctx context.Context, cmd services.RegisterUserCommand) (services.AuthResult, error)
	loginFunc    func(ctx context.Context, email, password string) (services.AuthResult, error)
	adminFunc    func(ctx context.Context, email, password string) (services.AuthResult, error)
	profileFunc  func(ctx context.Context, userID string) (services.User, error)
	shippingFunc func(ctx context.Context, userID string, profile services.ShippingProfile) (services.User, error)
}

func (s *stubUserService) Register(ctx context.Context, cmd services.RegisterUserCommand) (services.AuthResult, error) {
	return s.registerFunc(ctx, cmd)
}

func (s *stubUserService) Login(ctx context.Context, email, password string) (services.AuthResult, error) {
	return s.loginFunc(ctx, email, password)
}

func (s *stubUserService) AdminLogin(ctx context.Context, email, password string) (services.AuthResult, error) {
	return s.adminFunc(ctx, email, password)
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (services.User, error) {
	return s.profileFunc(ctx, userID)
}

func (s *stubUserService) UpdateShippingProfile(ctx context.Context, userID string, profile services.ShippingProfile) (services.User, error) {
	return s.shippingFunc(ctx, userID, profile)
}

type stubCatalogService struct {
	createFunc func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error)
	listFunc   func(ctx context.Context) ([]services.Product, error)
	getFunc    func(ctx context.Context, productID string) (services.Product, error)
	deleteFunc func(ctx context.Context, productID string) error
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	return s.createFunc(ctx, cmd)
}

func (s *stubCatalogService) ListProducts(ctx context.Context) ([]services.Product, error) {
	return s.listFunc(ctx)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	return s.getFunc(ctx, productID)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	return s.deleteFunc(ctx, productID)
}

var (
	_ services.CartService           = (*stubCartService)(nil)
	_ services.OrderService          = (*stubOrderService)(nil)
	_ services.CheckoutService       = (*stubCheckoutService)(nil)
	_ services.PaymentWebhookService = (*stubWebhookService)(nil)
	_ services.UserService           = (*stubUserService)(nil)
	_ services.CatalogService        = (*stubCatalogService)(nil)
)
