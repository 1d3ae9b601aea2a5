package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/persistence"
)

// ActivityRepository stores the append-only case timeline.
type ActivityRepository interface {
	Create(ctx context.Context, activity *domain.CaseActivity) error
	ListByCase(ctx context.Context, caseID string, limit, offset int) ([]domain.CaseActivity, error)
	// LatestByTag returns the newest activity carrying tag, or nil when none exists.
	LatestByTag(ctx context.Context, caseID, tag string) (*domain.CaseActivity, error)
}

const activityColumns = `id, case_id, type, title, description, old_value, new_value, tag, actor_type, actor_id, created_at`

type activityRepository struct {
	db persistence.DB
}

// NewActivityRepository builds repository.
func NewActivityRepository(db persistence.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *domain.CaseActivity) error {
	const query = `
        INSERT INTO case_activities (case_id, type, title, description, old_value, new_value, tag, actor_type, actor_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		activity.CaseID,
		activity.Type,
		activity.Title,
		activity.Description,
		activity.OldValue,
		activity.NewValue,
		activity.Tag,
		actorKind(activity.Actor),
		activity.Actor.UserRef(),
		activity.CreatedAt,
	).Scan(&activity.ID)
}

func (r *activityRepository) ListByCase(ctx context.Context, caseID string, limit, offset int) ([]domain.CaseActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT ` + activityColumns + `
        FROM case_activities WHERE case_id=$1
        ORDER BY created_at DESC, seq DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, caseID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CaseActivity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *activity)
	}
	return result, rows.Err()
}

func (r *activityRepository) LatestByTag(ctx context.Context, caseID, tag string) (*domain.CaseActivity, error) {
	const query = `
        SELECT ` + activityColumns + `
        FROM case_activities WHERE case_id=$1 AND tag=$2
        ORDER BY created_at DESC, seq DESC
        LIMIT 1`
	activity, err := scanActivity(r.db.QueryRow(ctx, query, caseID, tag))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return activity, nil
}

func scanActivity(row pgx.Row) (*domain.CaseActivity, error) {
	var (
		activity  domain.CaseActivity
		actorType string
		actorID   *string
	)
	if err := row.Scan(
		&activity.ID,
		&activity.CaseID,
		&activity.Type,
		&activity.Title,
		&activity.Description,
		&activity.OldValue,
		&activity.NewValue,
		&activity.Tag,
		&actorType,
		&actorID,
		&activity.CreatedAt,
	); err != nil {
		return nil, err
	}
	activity.Actor = domain.ActorFromStored(actorType, actorID)
	return &activity, nil
}

func actorKind(actor domain.Actor) domain.ActorKind {
	if actor.IsSystem() {
		return domain.ActorKindSystem
	}
	return domain.ActorKindHuman
}
