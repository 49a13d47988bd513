package repositories

import (
	"context"
	"errors"

	domain "github.com/closetline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	WebhookEvents() WebhookEventRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ErrSkipWrite may be returned from a mutation callback to end the transaction without writing.
var ErrSkipWrite = errors.New("repositories: skip write")

// UserRepository persists customer accounts. Emails are unique.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
}

// ProductRepository persists catalog entries.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	Delete(ctx context.Context, productID string) error
}

// CartMutation edits the cart in place. exists is false when the user has no cart record yet.
type CartMutation func(cart *domain.Cart, exists bool) error

// CartRepository owns the one-per-user cart document.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	// Mutate runs fn inside a transaction and persists the edited cart.
	Mutate(ctx context.Context, userID string, fn CartMutation) (domain.Cart, error)
}

// OrderMutation edits the order in place.
type OrderMutation func(order *domain.Order) error

// OrderRepository persists orders. Orders are never deleted.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Mutate(ctx context.Context, orderID string, fn OrderMutation) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
}

// WebhookEventRepository is the replay ledger for payment gateway notifications.
type WebhookEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, event domain.WebhookEvent) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
