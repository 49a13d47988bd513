package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/closetline/api/internal/platform/firestore"
	"github.com/closetline/api/internal/repositories"
)

// Registry wires every Firestore repository against a single provider.
type Registry struct {
	provider      *pfirestore.Provider
	users         repositories.UserRepository
	products      repositories.ProductRepository
	carts         repositories.CartRepository
	orders        repositories.OrderRepository
	webhookEvents repositories.WebhookEventRepository
	health        repositories.HealthRepository
	closers       []func(context.Context) error
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*Registry)

// WithProductDecorator wraps the Firestore product repository, e.g. with a read-through cache.
// closer, when non-nil, runs on Close.
func WithProductDecorator(decorate func(repositories.ProductRepository) repositories.ProductRepository, closer func(context.Context) error) RegistryOption {
	return func(r *Registry) {
		if decorate != nil && r.products != nil {
			r.products = decorate(r.products)
		}
		if closer != nil {
			r.closers = append(r.closers, closer)
		}
	}
}

// WithHealthRepository attaches the dependency health probe.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) { r.health = health }
}

// NewRegistry constructs the Firestore-backed registry.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build user repository: %w", err)
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	events, err := NewWebhookEventRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build webhook event repository: %w", err)
	}

	reg := &Registry{
		provider:      provider,
		users:         users,
		products:      products,
		carts:         carts,
		orders:        orders,
		webhookEvents: events,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}
	return reg, nil
}

func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) Products() repositories.ProductRepository           { return r.products }
func (r *Registry) Carts() repositories.CartRepository                 { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) WebhookEvents() repositories.WebhookEventRepository { return r.webhookEvents }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

// Close releases decorators first, then the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, closer := range r.closers {
		if err := closer(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.provider.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
