package service

import (
	"context"
	"testing"

	"github.com/spec-kit/case-service/internal/domain"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

func TestPickOwner(t *testing.T) {
	tests := []struct {
		name  string
		users []domain.SupportUser
		want  string
	}{
		{
			name: "fewest open cases",
			users: []domain.SupportUser{
				{ID: "a", Role: domain.RoleAgent, Active: true, OpenCases: 3},
				{ID: "b", Role: domain.RoleAdmin, Active: true, OpenCases: 2},
			},
			want: "b",
		},
		{
			name: "lowest id among equals",
			users: []domain.SupportUser{
				{ID: "u-7", Role: domain.RoleAgent, Active: true, OpenCases: 2},
				{ID: "u-2", Role: domain.RoleAgent, Active: true, OpenCases: 2},
			},
			want: "u-2",
		},
		{
			name: "schedulers and inactive users are skipped",
			users: []domain.SupportUser{
				{ID: "a", Role: domain.RoleScheduler, Active: true},
				{ID: "b", Role: domain.RoleAgent, Active: false},
				{ID: "c", Role: domain.RoleAgent, Active: true, OpenCases: 9},
			},
			want: "c",
		},
		{
			name: "nobody available",
			users: []domain.SupportUser{
				{ID: "a", Role: domain.RoleScheduler, Active: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAssignmentService(&fakeUserRepo{users: tt.users})
			owner, err := svc.PickOwner(context.Background())
			if err != nil {
				t.Fatalf("PickOwner: %v", err)
			}
			got := ""
			if owner != nil {
				got = owner.ID
			}
			if got != tt.want {
				t.Errorf("owner = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveOwner(t *testing.T) {
	svc := NewAssignmentService(&fakeUserRepo{users: []domain.SupportUser{
		{ID: "agent", Role: domain.RoleAgent, Active: true},
		{ID: "gone", Role: domain.RoleAgent, Active: false},
		{ID: "cron", Role: domain.RoleScheduler, Active: true},
	}})

	tests := []struct {
		id   string
		code string
	}{
		{id: "agent"},
		{id: "gone", code: apperrors.CodeValidationFailed},
		{id: "cron", code: apperrors.CodeValidationFailed},
		{id: "nobody", code: apperrors.CodeNotFound},
	}
	for _, tt := range tests {
		_, err := svc.ResolveOwner(context.Background(), tt.id)
		if tt.code == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.id, err)
			}
			continue
		}
		if !apperrors.HasCode(err, tt.code) {
			t.Errorf("%s: err = %v, want %s", tt.id, err, tt.code)
		}
	}
}
