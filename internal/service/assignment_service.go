package service

import (
	"context"
	"sort"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/repository"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

// AssignmentService picks owners for new cases.
type AssignmentService struct {
	users repository.SupportUserRepository
}

// NewAssignmentService creates the service.
func NewAssignmentService(users repository.SupportUserRepository) *AssignmentService {
	return &AssignmentService{users: users}
}

// PickOwner returns the active agent or admin with the fewest open cases,
// lowest id first among equals. It returns nil when nobody is available.
func (s *AssignmentService) PickOwner(ctx context.Context) (*domain.SupportUser, error) {
	users, err := s.users.ListActiveWithLoad(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	candidates := make([]domain.SupportUser, 0, len(users))
	for _, u := range users {
		if u.Active && canOwnCases(u.Role) {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].OpenCases != candidates[j].OpenCases {
			return candidates[i].OpenCases < candidates[j].OpenCases
		}
		return candidates[i].ID < candidates[j].ID
	})
	owner := candidates[0]
	return &owner, nil
}

// ResolveOwner loads an explicitly requested owner and checks it can take cases.
func (s *AssignmentService) ResolveOwner(ctx context.Context, id string) (*domain.SupportUser, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "support_user", map[string]any{"ownerId": id})
	}
	if !user.Active || !canOwnCases(user.Role) {
		return nil, apperrors.NewFieldError("ownerId", "must reference an active support user")
	}
	return user, nil
}

func canOwnCases(role domain.Role) bool {
	return role == domain.RoleAgent || role == domain.RoleAdmin
}
