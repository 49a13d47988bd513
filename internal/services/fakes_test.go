package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/repositories"
)

type fakeRepoError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *fakeRepoError) Error() string       { return e.err.Error() }
func (e *fakeRepoError) Unwrap() error       { return e.err }
func (e *fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e *fakeRepoError) IsConflict() bool    { return e.conflict }
func (e *fakeRepoError) IsUnavailable() bool { return e.unavailable }

func repoNotFound() error    { return &fakeRepoError{err: errors.New("not found"), notFound: true} }
func repoConflict() error    { return &fakeRepoError{err: errors.New("conflict"), conflict: true} }
func repoUnavailable() error { return &fakeRepoError{err: errors.New("unavailable"), unavailable: true} }

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]domain.User
	insertErr error
	updateErr error
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) Insert(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repoConflict()
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return domain.User{}, repoNotFound()
	}
	return user, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, repoNotFound()
}

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[string]domain.Product
	findErr  error
}

func newFakeProductRepo(products ...domain.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: make(map[string]domain.Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *fakeProductRepo) Insert(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = product
	return nil
}

func (r *fakeProductRepo) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.Product{}, r.findErr
	}
	product, ok := r.products[id]
	if !ok {
		return domain.Product{}, repoNotFound()
	}
	return product, nil
}

func (r *fakeProductRepo) List(context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeProductRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return repoNotFound()
	}
	delete(r.products, id)
	return nil
}

type fakeCartRepo struct {
	mu        sync.Mutex
	carts     map[string]domain.Cart
	writes    int
	mutateErr error
	// afterGet runs once a read has released the lock, standing in for a concurrent writer.
	afterGet func()
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[string]domain.Cart)}
}

func (r *fakeCartRepo) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	cart, ok := r.carts[userID]
	r.mu.Unlock()
	if r.afterGet != nil {
		r.afterGet()
	}
	if !ok {
		return domain.Cart{}, repoNotFound()
	}
	return cloneTestCart(cart), nil
}

func (r *fakeCartRepo) Mutate(_ context.Context, userID string, fn repositories.CartMutation) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mutateErr != nil {
		return domain.Cart{}, r.mutateErr
	}
	stored, exists := r.carts[userID]
	cart := domain.Cart{UserID: userID}
	if exists {
		cart = cloneTestCart(stored)
	}
	if err := fn(&cart, exists); err != nil {
		if errors.Is(err, repositories.ErrSkipWrite) {
			return cart, nil
		}
		return domain.Cart{}, err
	}
	r.carts[userID] = cloneTestCart(cart)
	r.writes++
	return cart, nil
}

func cloneTestCart(cart domain.Cart) domain.Cart {
	out := cart
	out.Items = append([]domain.CartItem(nil), cart.Items...)
	return out
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	insertErr error
	mutations int
}

func newFakeOrderRepo(orders ...domain.Order) *fakeOrderRepo {
	repo := &fakeOrderRepo{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (r *fakeOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) Mutate(_ context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repoNotFound()
	}
	if err := fn(&order); err != nil {
		if errors.Is(err, repositories.ErrSkipWrite) {
			return order, nil
		}
		return domain.Order{}, err
	}
	r.orders[orderID] = order
	r.mutations++
	return order, nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repoNotFound()
	}
	return order, nil
}

func (r *fakeOrderRepo) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeOrderRepo) List(_ context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if pager.PageSize > 0 && len(out) > pager.PageSize {
		return domain.CursorPage[domain.Order]{Items: out[:pager.PageSize], NextPageToken: "next"}, nil
	}
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

type fakeWebhookEventRepo struct {
	mu        sync.Mutex
	events    map[string]domain.WebhookEvent
	existsErr error
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{events: make(map[string]domain.WebhookEvent)}
}

func (r *fakeWebhookEventRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsErr != nil {
		return false, r.existsErr
	}
	_, ok := r.events[id]
	return ok, nil
}

func (r *fakeWebhookEventRepo) Record(_ context.Context, event domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.ID] = event
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if p.err != nil {
		return "", p.err
	}
	return "msg-1", nil
}

func (p *recordingPublisher) types() []OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingMetrics struct {
	mu       sync.Mutex
	orders   map[string]int
	webhooks map[string]int
	carts    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{orders: map[string]int{}, webhooks: map[string]int{}, carts: map[string]int{}}
}

func (m *countingMetrics) OrderPlaced(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[method]++
}

func (m *countingMetrics) WebhookEvent(eventType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[eventType+"/"+outcome]++
}

func (m *countingMetrics) CartMutation(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[op]++
}
