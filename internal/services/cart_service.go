package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartUsersRequired      = errors.New("cart service: user repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the cart, the line item, the user or the product does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartUnavailable indicates a backend failure.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// CartPricer prices a set of cart lines.
type CartPricer interface {
	PriceCart(items []domain.CartItem) domain.CartTotals
}

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Users    repositories.UserRepository
	Pricer   CartPricer
	Metrics  CartMetrics
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	users    repositories.UserRepository
	pricer   CartPricer
	metrics  CartMetrics
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Users == nil {
		return nil, errCartUsersRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}
	pricer := deps.Pricer
	if pricer == nil {
		pricer = NewCartPricingEngine(DefaultPricingRules())
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		users:    deps.Users,
		pricer:   pricer,
		metrics:  deps.Metrics,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	if userID == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: user and product are required", ErrCartInvalidInput)
	}
	if size == "" {
		return Cart{}, fmt.Errorf("%w: size is required", ErrCartInvalidInput)
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return Cart{}, s.translate(err, "user")
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Cart{}, s.translate(err, "product")
	}
	if !product.HasSize(size) {
		return Cart{}, fmt.Errorf("%w: size %q is not available for this product", ErrCartInvalidInput, size)
	}

	now := s.now()
	cart, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart, exists bool) error {
		if !exists {
			cart.CreatedAt = now
		}
		if idx := findLine(cart.Items, productID, &size); idx >= 0 {
			cart.Items[idx].Quantity++
		} else {
			cart.Items = append(cart.Items, domain.CartItem{
				ProductID: product.ID,
				Name:      product.Name,
				Size:      size,
				UnitPrice: product.Price,
				Quantity:  1,
				ImageURL:  product.PrimaryImage(),
				AddedAt:   now,
			})
		}
		s.reprice(cart, now)
		return nil
	})
	if err != nil {
		return Cart{}, s.translate(err, "cart")
	}
	s.recordMutation(ctx, "add", userID, productID)
	return cart, nil
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: user and product are required", ErrCartInvalidInput)
	}
	if cmd.Quantity == nil && cmd.NewSize == nil {
		return Cart{}, fmt.Errorf("%w: quantity or newSize is required", ErrCartInvalidInput)
	}
	if cmd.Quantity != nil && *cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	var newSize string
	if cmd.NewSize != nil {
		newSize = strings.TrimSpace(*cmd.NewSize)
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return Cart{}, s.translate(err, "product")
		}
		if newSize == "" || !product.HasSize(newSize) {
			return Cart{}, fmt.Errorf("%w: size %q is not available for this product", ErrCartInvalidInput, newSize)
		}
	}

	var selector *string
	if cmd.Size != nil {
		trimmed := strings.TrimSpace(*cmd.Size)
		if trimmed != "" {
			selector = &trimmed
		}
	}

	now := s.now()
	cart, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart, exists bool) error {
		if !exists {
			return fmt.Errorf("%w: cart", ErrCartNotFound)
		}
		idx := findLine(cart.Items, productID, selector)
		if idx < 0 {
			return fmt.Errorf("%w: cart item", ErrCartNotFound)
		}
		if cmd.Quantity != nil {
			cart.Items[idx].Quantity = *cmd.Quantity
		}
		if cmd.NewSize != nil && newSize != cart.Items[idx].Size {
			if other := findLine(cart.Items, productID, &newSize); other >= 0 {
				cart.Items[other].Quantity += cart.Items[idx].Quantity
				cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
			} else {
				cart.Items[idx].Size = newSize
			}
		}
		s.reprice(cart, now)
		return nil
	})
	if err != nil {
		return Cart{}, s.translate(err, "cart")
	}
	s.recordMutation(ctx, "update", userID, productID)
	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	if userID == "" || productID == "" || size == "" {
		return Cart{}, fmt.Errorf("%w: user, product and size are required", ErrCartInvalidInput)
	}

	now := s.now()
	cart, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart, exists bool) error {
		if !exists {
			return repositories.ErrSkipWrite
		}
		kept := cart.Items[:0]
		for _, item := range cart.Items {
			if item.ProductID == productID && item.Size == size {
				continue
			}
			kept = append(kept, item)
		}
		if len(kept) == len(cart.Items) {
			return repositories.ErrSkipWrite
		}
		cart.Items = kept
		s.reprice(cart, now)
		return nil
	})
	if err != nil {
		return Cart{}, s.translate(err, "cart")
	}
	cart.Totals = s.pricer.PriceCart(cart.Items)
	s.recordMutation(ctx, "remove", userID, productID)
	return cart, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CartView{}, fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{UserID: userID, Lines: []CartLineView{}}, nil
		}
		return CartView{}, s.translate(err, "cart")
	}

	view := CartView{
		UserID:    userID,
		Lines:     make([]CartLineView, 0, len(cart.Items)),
		Totals:    s.pricer.PriceCart(cart.Items),
		UpdatedAt: cart.UpdatedAt,
	}
	products := make(map[string]*Product)
	for _, item := range cart.Items {
		product, seen := products[item.ProductID]
		if !seen {
			found, err := s.products.FindByID(ctx, item.ProductID)
			switch {
			case err == nil:
				product = &found
			case isRepoNotFound(err):
				product = nil
			default:
				return CartView{}, s.translate(err, "product")
			}
			products[item.ProductID] = product
		}
		view.Lines = append(view.Lines, CartLineView{Item: item, Product: product})
	}
	return view, nil
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}
	now := s.now()
	_, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart, exists bool) error {
		if !exists {
			return repositories.ErrSkipWrite
		}
		cart.Items = []domain.CartItem{}
		cart.Totals = domain.CartTotals{}
		cart.UpdatedAt = now
		return nil
	})
	if err != nil {
		return s.translate(err, "cart")
	}
	s.recordMutation(ctx, "clear", userID, "")
	return nil
}

// RemoveOrderedItems takes the ordered quantities out of the cart inside one transaction.
// Lines added or topped up after the order snapshot are kept.
func (s *cartService) RemoveOrderedItems(ctx context.Context, userID string, ordered []CartItem) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}
	if len(ordered) == 0 {
		return nil
	}
	now := s.now()
	_, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart, exists bool) error {
		if !exists {
			return repositories.ErrSkipWrite
		}
		cart.Items = subtractOrdered(cart.Items, ordered)
		s.reprice(cart, now)
		return nil
	})
	if err != nil {
		return s.translate(err, "cart")
	}
	s.recordMutation(ctx, "checkout", userID, "")
	return nil
}

type lineKey struct {
	productID string
	size      string
}

func subtractOrdered(items, ordered []domain.CartItem) []domain.CartItem {
	owed := make(map[lineKey]int, len(ordered))
	for _, item := range ordered {
		owed[lineKey{item.ProductID, item.Size}] += item.Quantity
	}
	remaining := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		key := lineKey{item.ProductID, item.Size}
		if take := min(owed[key], item.Quantity); take > 0 {
			owed[key] -= take
			item.Quantity -= take
		}
		if item.Quantity > 0 {
			remaining = append(remaining, item)
		}
	}
	return remaining
}

func (s *cartService) reprice(cart *domain.Cart, now time.Time) {
	cart.Totals = s.pricer.PriceCart(cart.Items)
	cart.UpdatedAt = now
}

func (s *cartService) recordMutation(ctx context.Context, op, userID, productID string) {
	if s.metrics != nil {
		s.metrics.CartMutation(op)
	}
	s.logger(ctx, "cart."+op, map[string]any{
		"userId":    userID,
		"productId": productID,
	})
}

func (s *cartService) translate(err error, subject string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCartInvalidInput), errors.Is(err, ErrCartNotFound):
		return err
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %s", ErrCartNotFound, subject)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrCartConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
}

// findLine returns the index of the first line for productID, restricted to size when given.
func findLine(items []domain.CartItem, productID string, size *string) int {
	for i, item := range items {
		if item.ProductID != productID {
			continue
		}
		if size == nil || item.Size == *size {
			return i
		}
	}
	return -1
}
