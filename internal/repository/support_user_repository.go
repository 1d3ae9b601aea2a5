package repository

import (
	"context"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/persistence"
)

// SupportUserRepository reads the agents that can own cases.
type SupportUserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SupportUser, error)
	// ListActiveWithLoad returns active users with their open case counts,
	// least loaded first and lowest id breaking ties.
	ListActiveWithLoad(ctx context.Context) ([]domain.SupportUser, error)
}

type supportUserRepository struct {
	db persistence.DB
}

// NewSupportUserRepository instantiates the repository.
func NewSupportUserRepository(db persistence.DB) SupportUserRepository {
	return &supportUserRepository{db: db}
}

func (r *supportUserRepository) GetByID(ctx context.Context, id string) (*domain.SupportUser, error) {
	const query = `
        SELECT u.id, u.name, u.email, u.role, u.active,
               (SELECT COUNT(*) FROM cases c WHERE c.owner_id = u.id AND c.status NOT IN ('RESOLVED','CLOSED'))
        FROM support_users u WHERE u.id=$1`

	var user domain.SupportUser
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Active,
		&user.OpenCases,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *supportUserRepository) ListActiveWithLoad(ctx context.Context) ([]domain.SupportUser, error) {
	const query = `
        SELECT u.id, u.name, u.email, u.role, u.active, COUNT(c.id) AS open_cases
        FROM support_users u
        LEFT JOIN cases c ON c.owner_id = u.id AND c.status NOT IN ('RESOLVED','CLOSED')
        WHERE u.active
        GROUP BY u.id
        ORDER BY open_cases ASC, u.id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SupportUser
	for rows.Next() {
		var user domain.SupportUser
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Role,
			&user.Active,
			&user.OpenCases,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
