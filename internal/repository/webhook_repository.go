package repository

import (
	"context"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/persistence"
)

// WebhookRepository reads webhook subscriptions.
type WebhookRepository interface {
	GetByID(ctx context.Context, id string) (*domain.WebhookSubscription, error)
	ListActiveByEvent(ctx context.Context, event string) ([]domain.WebhookSubscription, error)
}

type webhookRepository struct {
	db persistence.DB
}

// NewWebhookRepository builds repository.
func NewWebhookRepository(db persistence.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) GetByID(ctx context.Context, id string) (*domain.WebhookSubscription, error) {
	const query = `SELECT id, url, secret, events, active FROM webhook_subscriptions WHERE id=$1`
	var sub domain.WebhookSubscription
	if err := r.db.QueryRow(ctx, query, id).Scan(&sub.ID, &sub.URL, &sub.Secret, &sub.Events, &sub.Active); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *webhookRepository) ListActiveByEvent(ctx context.Context, event string) ([]domain.WebhookSubscription, error) {
	const query = `
        SELECT id, url, secret, events, active
        FROM webhook_subscriptions
        WHERE active AND ($1 = ANY(events) OR '*' = ANY(events))
        ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WebhookSubscription
	for rows.Next() {
		var sub domain.WebhookSubscription
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Secret, &sub.Events, &sub.Active); err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}
