package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/closetline/api/internal/platform/textutil"
	"github.com/closetline/api/internal/services"
)

const (
	defaultBreakerMaxFailures = 5
	defaultBreakerOpenTimeout = 30 * time.Second
	metadataOrderID           = "orderId"
	metadataAmount            = "amount"
)

var (
	// ErrWebhookSecretMissing is returned by VerifyEvent when no signing secret is configured.
	ErrWebhookSecretMissing = errors.New("stripe: webhook signing secret is not configured")
	// ErrGatewayUnavailable indicates the circuit breaker is refusing calls to Stripe.
	ErrGatewayUnavailable = errors.New("stripe: gateway unavailable")
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey             string
	WebhookSecret      string
	Currency           string
	Backends           *stripe.Backends
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
	Logger             StripeLogger
	Sessions           stripeSessionAPI
}

// StripeGateway creates hosted Checkout sessions and verifies webhook signatures.
type StripeGateway struct {
	sessions      stripeSessionAPI
	breaker       *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
	webhookSecret string
	currency      string
	logger        StripeLogger
}

var _ services.PaymentGateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a Stripe gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	sessions := cfg.Sessions
	if sessions == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("stripe: invalid currency %q", cfg.Currency)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultBreakerOpenTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		IsSuccessful: stripeAvailable,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger(context.Background(), "payments.stripe.breaker.state", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &StripeGateway{
		sessions:      sessions,
		breaker:       breaker,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		currency:      currency,
		logger:        logger,
	}, nil
}

// CreateCheckoutSession creates a single line Checkout session for the order total.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req services.CheckoutSessionRequest) (services.CheckoutSession, error) {
	if g == nil {
		return services.CheckoutSession{}, errors.New("stripe: gateway is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return services.CheckoutSession{}, errors.New("stripe: order id is required")
	}
	if req.AmountMinor <= 0 {
		return services.CheckoutSession{}, fmt.Errorf("stripe: invalid amount %d", req.AmountMinor)
	}

	metadata := textutil.CompactStringMap(map[string]string{
		metadataOrderID: orderID,
		metadataAmount:  strconv.FormatInt(req.AmountMinor, 10),
	})
	name := strings.TrimSpace(req.Description)
	if name == "" {
		name = "Order " + orderID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(orderID),
		Metadata:          metadata,
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(req.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + orderID)

	session, err := g.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return g.sessions.New(params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return services.CheckoutSession{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return services.CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	g.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"orderId":   orderID,
		"amount":    req.AmountMinor,
	})

	return services.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// VerifyEvent checks the Stripe-Signature header and extracts the order reference of
// checkout.session.completed events.
func (g *StripeGateway) VerifyEvent(payload []byte, signatureHeader string) (services.PaymentEvent, error) {
	if g == nil || g.webhookSecret == "" {
		return services.PaymentEvent{}, ErrWebhookSecretMissing
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return services.PaymentEvent{}, fmt.Errorf("stripe: verify webhook: %w", err)
	}

	result := services.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if result.Type != services.StripeEventCheckoutCompleted || event.Data == nil {
		return result, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return services.PaymentEvent{}, fmt.Errorf("%w: stripe: decode checkout session: %v", services.ErrPaymentWebhookMalformed, err)
	}
	result.SessionID = session.ID
	result.OrderID = strings.TrimSpace(session.Metadata[metadataOrderID])
	if result.OrderID == "" {
		result.OrderID = strings.TrimSpace(session.ClientReferenceID)
	}
	return result, nil
}

// stripeAvailable reports whether err leaves the breaker's failure count untouched. A 4xx
// other than 429 is a rejected request, not an unhealthy Stripe.
func stripeAvailable(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	status := stripeErr.HTTPStatusCode
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}
