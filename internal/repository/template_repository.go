package repository

import (
	"context"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/persistence"
)

// TemplateRepository reads notification templates.
type TemplateRepository interface {
	// GetActiveByEvent returns pgx.ErrNoRows when no active template exists.
	GetActiveByEvent(ctx context.Context, event domain.NotificationEvent) (*domain.NotificationTemplate, error)
}

type templateRepository struct {
	db persistence.DB
}

// NewTemplateRepository builds repository.
func NewTemplateRepository(db persistence.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) GetActiveByEvent(ctx context.Context, event domain.NotificationEvent) (*domain.NotificationTemplate, error) {
	const query = `
        SELECT id, event, name, body, is_active
        FROM notification_templates WHERE event=$1 AND is_active`
	var tpl domain.NotificationTemplate
	if err := r.db.QueryRow(ctx, query, event).Scan(
		&tpl.ID,
		&tpl.Event,
		&tpl.Name,
		&tpl.Body,
		&tpl.IsActive,
	); err != nil {
		return nil, err
	}
	return &tpl, nil
}
