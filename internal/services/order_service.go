package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates a forbidden status transition, such as moving shipping backwards.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent modifications or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates a backend failure.
	ErrOrderUnavailable = errors.New("order: unavailable")

	errOrderRepositoryRequired = errors.New("order service: order repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	events OrderEventPublisher
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewOrderService constructs the order service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return orderIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderService{
		orders: deps.Orders,
		events: deps.Events,
		now:    func() time.Time { return deps.Clock().UTC() },
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one item", ErrOrderInvalidInput)
	}
	if _, ok := domain.ParsePaymentMethod(string(cmd.PaymentMethod)); !ok {
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	now := s.now()
	items := make([]OrderItem, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	order := Order{
		ID:             s.newID(),
		UserID:         userID,
		Items:          items,
		Shipping:       cmd.Shipping,
		Subtotal:       cmd.Totals.Subtotal,
		Tax:            cmd.Totals.Tax,
		ShippingFee:    cmd.Totals.Shipping,
		Total:          cmd.Totals.Total,
		PaymentMethod:  cmd.PaymentMethod,
		PaymentStatus:  domain.PaymentStatusUnpaid,
		ShippingStatus: domain.ShippingStatusPlaced,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.translate(err)
	}

	s.logger(ctx, "order.placed", map[string]any{
		"orderId":       order.ID,
		"userId":        userID,
		"paymentMethod": string(order.PaymentMethod),
		"total":         order.Total,
	})
	s.publish(ctx, OrderEventPlaced, order)
	return order, nil
}

func (s *orderService) AttachPaymentSession(ctx context.Context, orderID, sessionID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	sessionID = strings.TrimSpace(sessionID)
	if orderID == "" || sessionID == "" {
		return Order{}, fmt.Errorf("%w: order and session are required", ErrOrderInvalidInput)
	}
	now := s.now()
	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		if order.StripeSessionID == sessionID {
			return repositories.ErrSkipWrite
		}
		order.StripeSessionID = sessionID
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	return order, nil
}

// ConfirmPayment settles the order after the gateway reports captured funds. It is idempotent.
func (s *orderService) ConfirmPayment(ctx context.Context, orderID, sessionID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	sessionID = strings.TrimSpace(sessionID)

	now := s.now()
	var paid bool
	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		sessionChanged := false
		if sessionID != "" && order.StripeSessionID == "" {
			order.StripeSessionID = sessionID
			order.UpdatedAt = now
			sessionChanged = true
		}
		paid = order.MarkPaid(now)
		if !paid && !sessionChanged {
			return repositories.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	if paid {
		s.logger(ctx, "order.paid", map[string]any{"orderId": order.ID, "paymentMethod": string(order.PaymentMethod)})
		s.publish(ctx, OrderEventPaid, order)
	}
	return order, nil
}

func (s *orderService) MarkCashOnDeliveryPaid(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}

	now := s.now()
	var paid bool
	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		if order.PaymentMethod != domain.PaymentMethodCashOnDelivery {
			return fmt.Errorf("%w: order %s is not cash on delivery", ErrOrderInvalidInput, order.ID)
		}
		paid = order.MarkPaid(now)
		if !paid {
			return repositories.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	if paid {
		s.logger(ctx, "order.paid", map[string]any{"orderId": order.ID, "paymentMethod": string(order.PaymentMethod)})
		s.publish(ctx, OrderEventPaid, order)
	}
	return order, nil
}

func (s *orderService) UpdateShippingStatus(ctx context.Context, orderID string, status string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseShippingStatus(status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown shipping status %q", ErrOrderInvalidInput, status)
	}

	now := s.now()
	var changed bool
	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		var err error
		changed, err = order.AdvanceShipping(target, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
		}
		if !changed {
			return repositories.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	if changed {
		s.logger(ctx, "order.shipping.updated", map[string]any{"orderId": order.ID, "status": string(order.ShippingStatus)})
		s.publish(ctx, OrderEventShippingUpdated, order)
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.translate(err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

func (s *orderService) ListOrders(ctx context.Context, pager Pagination) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translate(err)
	}
	if page.Items == nil {
		page.Items = []Order{}
	}
	return page, nil
}

// publish never fails the caller; the mailer tolerates missed notifications.
func (s *orderService) publish(ctx context.Context, eventType OrderEventType, order Order) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		UserID:         order.UserID,
		Email:          order.Shipping.Email,
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		ShippingStatus: string(order.ShippingStatus),
		Total:          order.Total,
		OccurredAt:     s.now(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":    string(eventType),
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOrderInvalidInput), errors.Is(err, ErrOrderInvalidState),
		errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrOrderConflict):
		return err
	case isRepoNotFound(err):
		return ErrOrderNotFound
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
}
