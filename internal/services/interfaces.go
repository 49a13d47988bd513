package services

import (
	"context"
	"io"
	"time"

	domain "github.com/closetline/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	User               = domain.User
	ShippingProfile    = domain.ShippingProfile
	Product            = domain.Product
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartTotals         = domain.CartTotals
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	SystemHealthReport = domain.SystemHealthReport
)

// CartService manages the single per-user cart. Every mutation reprices the cart.
type CartService interface {
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	GetCart(ctx context.Context, userID string) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
	RemoveOrderedItems(ctx context.Context, userID string, ordered []CartItem) error
}

// AddCartItemCommand adds one unit of a product in the given size.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Size      string
}

// UpdateCartItemCommand changes size and/or quantity of an existing line.
// Size selects the line when several sizes of the product are in the cart.
type UpdateCartItemCommand struct {
	UserID    string
	ProductID string
	Size      *string
	NewSize   *string
	Quantity  *int
}

// RemoveCartItemCommand deletes every line for the product/size pair.
type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
	Size      string
}

// CartView is a cart with live product details joined per line.
type CartView struct {
	UserID    string
	Lines     []CartLineView
	Totals    CartTotals
	UpdatedAt time.Time
}

// CartLineView pairs a stored line with the current product, nil when the product is gone.
type CartLineView struct {
	Item    CartItem
	Product *Product
}

// OrderService owns order creation and status transitions.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	AttachPaymentSession(ctx context.Context, orderID, sessionID string) (Order, error)
	ConfirmPayment(ctx context.Context, orderID, sessionID string) (Order, error)
	MarkCashOnDeliveryPaid(ctx context.Context, orderID string) (Order, error)
	UpdateShippingStatus(ctx context.Context, orderID string, status string) (Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]Order, error)
	ListOrders(ctx context.Context, pager Pagination) (domain.CursorPage[Order], error)
}

// PlaceOrderCommand snapshots a priced cart into a new order.
type PlaceOrderCommand struct {
	UserID        string
	Items         []CartItem
	Shipping      ShippingProfile
	Totals        CartTotals
	PaymentMethod domain.PaymentMethod
}

// CheckoutService converts a cart into an order.
type CheckoutService interface {
	PlaceCashOnDeliveryOrder(ctx context.Context, userID string) (Order, error)
	PlaceCardOrder(ctx context.Context, cmd PlaceCardOrderCommand) (CardCheckoutResult, error)
}

// PlaceCardOrderCommand optionally overrides the configured redirect URLs.
type PlaceCardOrderCommand struct {
	UserID     string
	SuccessURL string
	CancelURL  string
}

// CardCheckoutResult carries the created order and the hosted payment page URL.
type CardCheckoutResult struct {
	Order      Order
	SessionID  string
	SessionURL string
}

// PaymentWebhookService processes signed payment gateway notifications.
type PaymentWebhookService interface {
	HandleStripeEvent(ctx context.Context, payload []byte, signatureHeader string) (WebhookResult, error)
}

// WebhookResult summarises how a notification was handled.
type WebhookResult struct {
	EventID   string
	EventType string
	OrderID   string
	Duplicate bool
	Ignored   bool
}

// UserService manages accounts, sessions and shipping profiles.
type UserService interface {
	Register(ctx context.Context, cmd RegisterUserCommand) (AuthResult, error)
	Login(ctx context.Context, email, password string) (AuthResult, error)
	AdminLogin(ctx context.Context, email, password string) (AuthResult, error)
	GetProfile(ctx context.Context, userID string) (User, error)
	UpdateShippingProfile(ctx context.Context, userID string, profile ShippingProfile) (User, error)
}

// RegisterUserCommand captures sign-up input.
type RegisterUserCommand struct {
	Name     string
	Email    string
	Password string
}

// AuthResult is returned by every login flavour. User is empty for admin logins.
type AuthResult struct {
	User  User
	Token string
}

// CatalogService manages products.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// CreateProductCommand captures the admin product form.
type CreateProductCommand struct {
	Name        string
	Description string
	Price       float64
	Category    string
	SubCategory string
	Sizes       []string
	Bestseller  bool
	Images      []ImageUpload
}

// ImageUpload is a single image file streamed from a multipart form.
type ImageUpload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// ImageUploader stores product images and returns their public URLs.
type ImageUploader interface {
	UploadProductImage(ctx context.Context, productID string, image ImageUpload) (string, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(subject, email, role string) (string, error)
}

// PaymentGateway creates hosted checkout sessions and verifies gateway notifications.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	VerifyEvent(payload []byte, signatureHeader string) (PaymentEvent, error)
}

// CheckoutSessionRequest describes a single-line hosted checkout for an order.
type CheckoutSessionRequest struct {
	OrderID       string
	Description   string
	AmountMinor   int64 // order total in integer minor units
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
}

// CheckoutSession identifies the created hosted checkout page.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentEvent is a verified gateway notification.
type PaymentEvent struct {
	ID        string
	Type      string
	OrderID   string
	SessionID string
}

// OrderEventType enumerates notifications emitted for the mailer.
type OrderEventType string

const (
	OrderEventPlaced          OrderEventType = "order.placed"
	OrderEventPaid            OrderEventType = "order.paid"
	OrderEventShippingUpdated OrderEventType = "order.shipping.updated"
)

// OrderEvent is the payload handed to the external mail worker.
type OrderEvent struct {
	Type           OrderEventType `json:"type"`
	OrderID        string         `json:"orderId"`
	UserID         string         `json:"userId"`
	Email          string         `json:"email,omitempty"`
	PaymentMethod  string         `json:"paymentMethod"`
	PaymentStatus  string         `json:"paymentStatus"`
	ShippingStatus string         `json:"shippingStatus"`
	Total          float64        `json:"total"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// OrderEventPublisher delivers order events to the messaging backend.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// OrderMetrics records order placement counts.
type OrderMetrics interface {
	OrderPlaced(paymentMethod string)
}

// WebhookMetrics records payment notification outcomes.
type WebhookMetrics interface {
	WebhookEvent(eventType, outcome string)
}

// CartMetrics records cart mutation counts.
type CartMetrics interface {
	CartMutation(operation string)
}
