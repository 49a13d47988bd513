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

// StripeEventCheckoutCompleted is the only gateway notification that mutates orders.
const StripeEventCheckoutCompleted = "checkout.session.completed"

var (
	// ErrPaymentWebhookUnverified indicates the notification signature could not be verified.
	ErrPaymentWebhookUnverified = errors.New("payment webhook: signature verification failed")
	// ErrPaymentWebhookNotFound indicates the referenced order is missing.
	ErrPaymentWebhookNotFound = errors.New("payment webhook: order not found")
	// ErrPaymentWebhookUnavailable indicates a backend failure; the gateway should redeliver.
	ErrPaymentWebhookUnavailable = errors.New("payment webhook: unavailable")
	// ErrPaymentWebhookMalformed indicates a correctly signed event whose payload could not be decoded.
	ErrPaymentWebhookMalformed = errors.New("payment webhook: malformed event")
)

// PaymentWebhookServiceDeps wires the payment notification handler.
type PaymentWebhookServiceDeps struct {
	Gateway PaymentGateway
	Orders  OrderService
	Events  repositories.WebhookEventRepository
	Metrics WebhookMetrics
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type paymentWebhookService struct {
	gateway PaymentGateway
	orders  OrderService
	events  repositories.WebhookEventRepository
	metrics WebhookMetrics
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentWebhookService constructs the payment notification handler. A nil gateway rejects every notification.
func NewPaymentWebhookService(deps PaymentWebhookServiceDeps) (PaymentWebhookService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment webhook service: order service is required")
	}
	if deps.Events == nil {
		return nil, errors.New("payment webhook service: webhook event repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &paymentWebhookService{
		gateway: deps.Gateway,
		orders:  deps.Orders,
		events:  deps.Events,
		metrics: deps.Metrics,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

func (s *paymentWebhookService) HandleStripeEvent(ctx context.Context, payload []byte, signatureHeader string) (WebhookResult, error) {
	if s.gateway == nil {
		s.record("unknown", "unverified")
		return WebhookResult{}, fmt.Errorf("%w: payment gateway not configured", ErrPaymentWebhookUnverified)
	}
	if strings.TrimSpace(signatureHeader) == "" {
		s.record("unknown", "unverified")
		return WebhookResult{}, fmt.Errorf("%w: missing signature", ErrPaymentWebhookUnverified)
	}

	event, err := s.gateway.VerifyEvent(payload, signatureHeader)
	if errors.Is(err, ErrPaymentWebhookMalformed) {
		s.record(StripeEventCheckoutCompleted, "malformed")
		s.logger(ctx, "payment.webhook.decode.failed", map[string]any{"error": err.Error()})
		return WebhookResult{}, err
	}
	if err != nil {
		s.record("unknown", "unverified")
		s.logger(ctx, "payment.webhook.verify.failed", map[string]any{"error": err.Error()})
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrPaymentWebhookUnverified, err)
	}

	result := WebhookResult{EventID: event.ID, EventType: event.Type, OrderID: event.OrderID}
	if event.Type != StripeEventCheckoutCompleted {
		result.Ignored = true
		s.record(event.Type, "ignored")
		return result, nil
	}

	seen, err := s.events.Exists(ctx, event.ID)
	if err != nil {
		s.record(event.Type, "failed")
		return result, fmt.Errorf("%w: %v", ErrPaymentWebhookUnavailable, err)
	}
	if seen {
		result.Duplicate = true
		s.record(event.Type, "duplicate")
		s.logger(ctx, "payment.webhook.duplicate", map[string]any{"eventId": event.ID, "orderId": event.OrderID})
		return result, nil
	}

	orderID := strings.TrimSpace(event.OrderID)
	if orderID == "" {
		s.record(event.Type, "not_found")
		return result, fmt.Errorf("%w: event %s carries no order id", ErrPaymentWebhookNotFound, event.ID)
	}

	if _, err := s.orders.ConfirmPayment(ctx, orderID, event.SessionID); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.record(event.Type, "not_found")
			return result, fmt.Errorf("%w: %s", ErrPaymentWebhookNotFound, orderID)
		}
		s.record(event.Type, "failed")
		return result, fmt.Errorf("%w: %v", ErrPaymentWebhookUnavailable, err)
	}

	if err := s.events.Record(ctx, domain.WebhookEvent{
		ID:          event.ID,
		Type:        event.Type,
		OrderID:     orderID,
		ProcessedAt: s.now(),
	}); err != nil {
		// The order is already paid; a redelivery is a no-op.
		s.logger(ctx, "payment.webhook.record.failed", map[string]any{"eventId": event.ID, "error": err.Error()})
	}

	s.record(event.Type, "processed")
	s.logger(ctx, "payment.webhook.processed", map[string]any{"eventId": event.ID, "orderId": orderID})
	return result, nil
}

func (s *paymentWebhookService) record(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEvent(eventType, outcome)
	}
}
