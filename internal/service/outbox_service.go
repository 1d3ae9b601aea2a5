package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/outbox"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

// OutboxService exposes exhausted entries to operators.
type OutboxService struct {
	store  outbox.Store
	logger *zap.Logger
	now    Clock
}

// NewOutboxService creates the service.
func NewOutboxService(store outbox.Store, logger *zap.Logger, clock Clock) *OutboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxService{store: store, logger: logger, now: clockOrDefault(clock)}
}

// ListExhausted returns FAILED entries that will not be retried, oldest first.
func (s *OutboxService) ListExhausted(ctx context.Context, page, limit int) ([]domain.OutboxEntry, error) {
	page, limit = normalizePage(page, limit)
	entries, err := s.store.ListExhausted(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if entries == nil {
		entries = []domain.OutboxEntry{}
	}
	return entries, nil
}

// Requeue resets an exhausted entry so the dispatcher picks it up again.
func (s *OutboxService) Requeue(ctx context.Context, id string) error {
	err := s.store.Requeue(ctx, id, s.now().UTC())
	if errors.Is(err, outbox.ErrNotClaimed) {
		return apperrors.NewNotFound("exhausted_outbox_entry", map[string]any{"id": id})
	}
	if err != nil {
		return notFound(err, "exhausted_outbox_entry", map[string]any{"id": id})
	}
	s.logger.Info("outbox entry requeued", zap.String("outbox_id", id))
	return nil
}
