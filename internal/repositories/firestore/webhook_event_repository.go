package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/closetline/api/internal/domain"
	pfirestore "github.com/closetline/api/internal/platform/firestore"
	"github.com/closetline/api/internal/repositories"
)

const webhookEventCollection = "webhookEvents"

// WebhookEventRepository stores processed payment gateway event IDs.
type WebhookEventRepository struct {
	base *pfirestore.BaseRepository[webhookEventDocument]
}

var _ repositories.WebhookEventRepository = (*WebhookEventRepository)(nil)

// NewWebhookEventRepository constructs the Firestore replay ledger.
func NewWebhookEventRepository(provider *pfirestore.Provider) (*WebhookEventRepository, error) {
	if provider == nil {
		return nil, errors.New("webhook event repository requires firestore provider")
	}
	return &WebhookEventRepository{
		base: pfirestore.NewBaseRepository[webhookEventDocument](provider, webhookEventCollection, nil, nil),
	}, nil
}

// Exists reports whether the event ID has already been processed.
func (r *WebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	_, err := r.base.Get(ctx, eventID)
	if err == nil {
		return true, nil
	}
	if pfirestore.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Record stores the event. Recording an already known event is not an error.
func (r *WebhookEventRepository) Record(ctx context.Context, event domain.WebhookEvent) error {
	err := r.base.Create(ctx, event.ID, webhookEventDocument{
		Type:        event.Type,
		OrderID:     event.OrderID,
		ProcessedAt: event.ProcessedAt.UTC(),
	})
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return nil
	}
	return err
}

type webhookEventDocument struct {
	Type        string    `firestore:"type"`
	OrderID     string    `firestore:"orderId,omitempty"`
	ProcessedAt time.Time `firestore:"processedAt"`
}
