package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/closetline/api/internal/platform/httpx"
	"github.com/closetline/api/internal/services"
)

const (
	maxWebhookBodySize     = 64 * 1024
	stripeSignatureHeader  = "Stripe-Signature"
	webhookProcessedReason = "Webhook processed"
)

// PaymentWebhookHandlers receives signed Stripe notifications. The route carries no auth middleware;
// the signature is the credential.
type PaymentWebhookHandlers struct {
	webhooks services.PaymentWebhookService
}

// NewPaymentWebhookHandlers constructs webhook handlers.
func NewPaymentWebhookHandlers(webhooks services.PaymentWebhookService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{webhooks: webhooks}
}

// Routes wires POST /webhook.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/webhook", h.stripeWebhook)
}

func (h *PaymentWebhookHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webhooks == nil {
		serviceUnavailable(ctx, w, "webhook_unavailable", "webhook processing is unavailable")
		return
	}
	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.webhooks.HandleStripeEvent(ctx, payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		writeWebhookError(ctx, w, err)
		return
	}

	fields := map[string]any{
		"received":  true,
		"duplicate": result.Duplicate,
		"ignored":   result.Ignored,
	}
	if result.OrderID != "" {
		fields["order_id"] = result.OrderID
	}
	writeSuccess(w, http.StatusOK, webhookProcessedReason, fields)
}

func writeWebhookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentWebhookUnverified):
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "webhook signature verification failed", http.StatusUnauthorized))
	case errors.Is(err, services.ErrPaymentWebhookMalformed):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_event", "webhook event payload could not be decoded", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentWebhookNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order referenced by the event was not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentWebhookUnavailable):
		serviceUnavailable(ctx, w, "webhook_unavailable", "webhook processing is unavailable")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
	}
}
