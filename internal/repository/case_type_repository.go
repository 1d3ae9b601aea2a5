package repository

import (
	"context"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/persistence"
)

// CaseTypeRepository reads case type policies.
type CaseTypeRepository interface {
	GetByID(ctx context.Context, id string) (*domain.CaseTypePolicy, error)
}

type caseTypeRepository struct {
	db persistence.DB
}

// NewCaseTypeRepository builds repository.
func NewCaseTypeRepository(db persistence.DB) CaseTypeRepository {
	return &caseTypeRepository{db: db}
}

func (r *caseTypeRepository) GetByID(ctx context.Context, id string) (*domain.CaseTypePolicy, error) {
	const query = `
        SELECT id, name, category, default_severity, default_sla_minutes, require_provider, require_order_id,
               notify_on_create, is_active
        FROM case_types WHERE id=$1`
	var policy domain.CaseTypePolicy
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&policy.ID,
		&policy.Name,
		&policy.Category,
		&policy.DefaultSeverity,
		&policy.DefaultSLAMinutes,
		&policy.RequireProvider,
		&policy.RequireOrderID,
		&policy.NotifyOnCreate,
		&policy.IsActive,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}
