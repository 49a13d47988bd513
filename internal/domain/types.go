package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// User is a storefront customer account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	// Shipping stays nil until the customer saves a complete profile.
	Shipping  *ShippingProfile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShippingProfile is the delivery contact captured before checkout.
type ShippingProfile struct {
	FirstName string
	LastName  string
	Email     string
	Street    string
	City      string
	State     string
	Zipcode   string
	Country   string
	Phone     string
}

// Product describes a catalog entry available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Category    string
	SubCategory string
	Sizes       []string
	Bestseller  bool
	Images      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasSize reports whether size is one of the product's allowed sizes.
func (p Product) HasSize(size string) bool {
	for _, candidate := range p.Sizes {
		if candidate == size {
			return true
		}
	}
	return false
}

// PrimaryImage returns the first image URL or an empty string.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// CartItem stores a single product/size line within a cart.
type CartItem struct {
	ProductID string
	Name      string
	Size      string
	UnitPrice float64
	Quantity  int
	ImageURL  string
	AddedAt   time.Time
}

// CartTotals summarises the priced state of a set of line items.
type CartTotals struct {
	Quantity int
	Subtotal float64
	Tax      float64
	Shipping float64
	Total    float64
}

// Cart holds a user's pending line items. The user ID doubles as the cart ID.
type Cart struct {
	UserID    string
	Items     []CartItem
	Totals    CartTotals
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentMethod enumerates the supported checkout variants.
type PaymentMethod string

const (
	// PaymentMethodCashOnDelivery settles payment when the parcel is handed over.
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	// PaymentMethodCard settles payment through a Stripe Checkout session.
	PaymentMethodCard PaymentMethod = "CARD"
)

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// ShippingStatus tracks fulfilment progress of an order.
type ShippingStatus string

const (
	ShippingStatusPlaced         ShippingStatus = "PLACED"
	ShippingStatusPacking        ShippingStatus = "PACKING"
	ShippingStatusShipped        ShippingStatus = "SHIPPED"
	ShippingStatusOutForDelivery ShippingStatus = "OUT_FOR_DELIVERY"
	ShippingStatusDelivered      ShippingStatus = "DELIVERED"
)

// OrderItem is a copied cart line frozen at checkout.
type OrderItem struct {
	ProductID string
	Name      string
	Size      string
	UnitPrice float64
	Quantity  int
	ImageURL  string
}

// Order is an immutable cart snapshot with mutable payment and shipping status.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	Shipping        ShippingProfile
	Subtotal        float64
	Tax             float64
	ShippingFee     float64
	Total           float64
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	ShippingStatus  ShippingStatus
	PaidAt          *time.Time
	StripeSessionID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WebhookEvent records a processed payment gateway notification.
type WebhookEvent struct {
	ID          string
	Type        string
	OrderID     string
	ProcessedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
