package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/repositories"
)

const orderIDPlaceholder = "{ORDER_ID}"

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutNotFound indicates the user does not exist.
	ErrCheckoutNotFound = errors.New("checkout: not found")
	// ErrCheckoutPrecondition indicates the cart or the user profile is not ready for checkout.
	ErrCheckoutPrecondition = errors.New("checkout: precondition failed")
	// ErrCheckoutPaymentSession indicates the payment session could not be created.
	ErrCheckoutPaymentSession = errors.New("checkout: payment_session_failed")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts   repositories.CartRepository
	Users   repositories.UserRepository
	Cart    CartService
	Orders  OrderService
	Pricer  CartPricer
	Gateway PaymentGateway
	Metrics OrderMetrics

	// SuccessURL and CancelURL may contain {ORDER_ID}, replaced with the new order ID.
	// Their hosts also bound the redirect URLs a client may supply.
	SuccessURL string
	CancelURL  string
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts      repositories.CartRepository
	users      repositories.UserRepository
	cart       CartService
	orders     OrderService
	pricer     CartPricer
	gateway    PaymentGateway
	metrics    OrderMetrics
	successURL string
	cancelURL  string

	// redirectHosts is empty when no URL is configured; any http(s) host is then accepted.
	redirectHosts map[string]struct{}

	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

type checkoutSnapshot struct {
	items    []CartItem
	totals   CartTotals
	shipping ShippingProfile
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("checkout service: user repository is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	pricer := deps.Pricer
	if pricer == nil {
		pricer = NewCartPricingEngine(DefaultPricingRules())
	}

	return &checkoutService{
		carts:         deps.Carts,
		users:         deps.Users,
		cart:          deps.Cart,
		orders:        deps.Orders,
		pricer:        pricer,
		gateway:       deps.Gateway,
		metrics:       deps.Metrics,
		successURL:    strings.TrimSpace(deps.SuccessURL),
		cancelURL:     strings.TrimSpace(deps.CancelURL),
		redirectHosts: redirectHosts(deps.SuccessURL, deps.CancelURL),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// PlaceCashOnDeliveryOrder turns the cart into an unpaid cash on delivery order and empties the cart.
func (s *checkoutService) PlaceCashOnDeliveryOrder(ctx context.Context, userID string) (Order, error) {
	snapshot, err := s.prepare(ctx, userID)
	if err != nil {
		return Order{}, err
	}

	order, err := s.placeOrder(ctx, userID, snapshot, domain.PaymentMethodCashOnDelivery)
	if err != nil {
		return Order{}, err
	}
	s.clearCart(ctx, userID, order.ID, snapshot.items)
	return order, nil
}

// PlaceCardOrder creates an unpaid card order and a hosted checkout session for its total.
// The cart is cleared even when the session cannot be created; the unpaid order remains.
func (s *checkoutService) PlaceCardOrder(ctx context.Context, cmd PlaceCardOrderCommand) (CardCheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if s.gateway == nil {
		return CardCheckoutResult{}, fmt.Errorf("%w: card payments are not configured", ErrCheckoutUnavailable)
	}
	successURL := firstNonEmpty(cmd.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(cmd.CancelURL, s.cancelURL)
	if successURL == "" || cancelURL == "" {
		return CardCheckoutResult{}, fmt.Errorf("%w: success and cancel urls are required", ErrCheckoutInvalidInput)
	}
	for _, redirect := range []string{successURL, cancelURL} {
		if err := s.checkRedirect(redirect); err != nil {
			return CardCheckoutResult{}, err
		}
	}

	snapshot, err := s.prepare(ctx, userID)
	if err != nil {
		return CardCheckoutResult{}, err
	}

	order, err := s.placeOrder(ctx, userID, snapshot, domain.PaymentMethodCard)
	if err != nil {
		return CardCheckoutResult{}, err
	}
	defer s.clearCart(ctx, userID, order.ID, snapshot.items)

	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		OrderID:       order.ID,
		Description:   fmt.Sprintf("Order %s", order.ID),
		AmountMinor:   ToMinorUnits(order.Total),
		SuccessURL:    strings.ReplaceAll(successURL, orderIDPlaceholder, order.ID),
		CancelURL:     strings.ReplaceAll(cancelURL, orderIDPlaceholder, order.ID),
		CustomerEmail: order.Shipping.Email,
	})
	if err != nil {
		s.logger(ctx, "checkout.session.failed", map[string]any{
			"orderId": order.ID,
			"userId":  userID,
			"error":   err.Error(),
		})
		return CardCheckoutResult{Order: order}, fmt.Errorf("%w: %v", ErrCheckoutPaymentSession, err)
	}

	if updated, err := s.orders.AttachPaymentSession(ctx, order.ID, session.ID); err != nil {
		// The webhook locates the order through session metadata, so the redirect can proceed.
		s.logger(ctx, "checkout.session_attach.failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		order.StripeSessionID = session.ID
	} else {
		order = updated
	}

	return CardCheckoutResult{
		Order:      order,
		SessionID:  session.ID,
		SessionURL: session.URL,
	}, nil
}

func (s *checkoutService) prepare(ctx context.Context, userID string) (checkoutSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return checkoutSnapshot{}, fmt.Errorf("%w: user is required", ErrCheckoutInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return checkoutSnapshot{}, fmt.Errorf("%w: user %s", ErrCheckoutNotFound, userID)
		}
		return checkoutSnapshot{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil && !isRepoNotFound(err) {
		return checkoutSnapshot{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	items := make([]CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity > 0 {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return checkoutSnapshot{}, fmt.Errorf("%w: cart_empty", ErrCheckoutPrecondition)
	}
	if user.Shipping == nil {
		return checkoutSnapshot{}, fmt.Errorf("%w: shipping_profile_missing", ErrCheckoutPrecondition)
	}

	return checkoutSnapshot{
		items:    items,
		totals:   s.pricer.PriceCart(items),
		shipping: *user.Shipping,
	}, nil
}

func (s *checkoutService) placeOrder(ctx context.Context, userID string, snapshot checkoutSnapshot, method domain.PaymentMethod) (Order, error) {
	order, err := s.orders.PlaceOrder(ctx, PlaceOrderCommand{
		UserID:        strings.TrimSpace(userID),
		Items:         snapshot.items,
		Shipping:      snapshot.shipping,
		Totals:        snapshot.totals,
		PaymentMethod: method,
	})
	if err != nil {
		return Order{}, fmt.Errorf("checkout: place order: %w", err)
	}
	if s.metrics != nil {
		s.metrics.OrderPlaced(string(method))
	}
	return order, nil
}

// clearCart removes what the order captured. Anything added to the cart since the snapshot stays.
func (s *checkoutService) clearCart(ctx context.Context, userID, orderID string, ordered []CartItem) {
	if err := s.cart.RemoveOrderedItems(ctx, userID, ordered); err != nil {
		s.logger(ctx, "checkout.cart_clear.failed", map[string]any{
			"userId":  userID,
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) checkRedirect(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%w: redirect url must be absolute", ErrCheckoutInvalidInput)
	}
	if scheme := strings.ToLower(parsed.Scheme); scheme != "https" && scheme != "http" {
		return fmt.Errorf("%w: redirect url must use http or https", ErrCheckoutInvalidInput)
	}
	if len(s.redirectHosts) == 0 {
		return nil
	}
	if _, ok := s.redirectHosts[strings.ToLower(parsed.Host)]; !ok {
		return fmt.Errorf("%w: redirect host %s is not allowed", ErrCheckoutInvalidInput, parsed.Host)
	}
	return nil
}

func redirectHosts(configured ...string) map[string]struct{} {
	hosts := make(map[string]struct{}, len(configured))
	for _, raw := range configured {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || parsed.Host == "" {
			continue
		}
		hosts[strings.ToLower(parsed.Host)] = struct{}{}
	}
	return hosts
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
