// Package lifecycle holds the pure case state machine. It performs no I/O;
// callers persist the returned case and activity.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/case-service/internal/domain"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

var allowedTransitions = map[domain.CaseStatus][]domain.CaseStatus{
	domain.CaseStatusNew: {
		domain.CaseStatusInvestigating,
		domain.CaseStatusClosed,
	},
	domain.CaseStatusInvestigating: {
		domain.CaseStatusWaitingCustomer,
		domain.CaseStatusWaitingProvider,
		domain.CaseStatusFixing,
		domain.CaseStatusResolved,
		domain.CaseStatusClosed,
	},
	domain.CaseStatusWaitingCustomer: {
		domain.CaseStatusInvestigating,
		domain.CaseStatusFixing,
		domain.CaseStatusResolved,
		domain.CaseStatusClosed,
	},
	domain.CaseStatusWaitingProvider: {
		domain.CaseStatusInvestigating,
		domain.CaseStatusFixing,
		domain.CaseStatusResolved,
		domain.CaseStatusClosed,
	},
	domain.CaseStatusFixing: {
		domain.CaseStatusResolved,
		domain.CaseStatusWaitingCustomer,
		domain.CaseStatusWaitingProvider,
		domain.CaseStatusClosed,
	},
	domain.CaseStatusResolved: {
		domain.CaseStatusClosed,
		domain.CaseStatusInvestigating,
	},
	domain.CaseStatusClosed: {
		domain.CaseStatusInvestigating,
	},
}

// InitialStatus returns the status every new case starts in.
func InitialStatus() domain.CaseStatus {
	return domain.CaseStatusNew
}

// AllowedTargets lists the statuses reachable from current.
func AllowedTargets(current domain.CaseStatus) []domain.CaseStatus {
	targets := allowedTransitions[current]
	out := make([]domain.CaseStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to domain.CaseStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsReopen reports whether from -> to takes a finished case back into work.
func IsReopen(from, to domain.CaseStatus) bool {
	return !from.IsOpen() && to.IsOpen()
}

// Input carries the data a transition may need besides the target status.
type Input struct {
	Resolution string
	RootCause  string
	// NewSLADeadline replaces the deadline on reopen and clears SLAMissed.
	NewSLADeadline *time.Time
}

// Result is the outcome of a successful transition.
type Result struct {
	Case     domain.Case
	Activity domain.CaseActivity
	// SLAReset is set when a reopen installed a new deadline.
	SLAReset bool
}

// Transition moves c to target. On error the input case is returned untouched
// and no activity is produced.
func Transition(c domain.Case, target domain.CaseStatus, in Input, actor domain.Actor, now time.Time) (Result, error) {
	from := c.Status
	if !CanTransition(from, target) {
		return Result{Case: c}, apperrors.NewInvalidTransition(string(from), string(target))
	}

	resolution := strings.TrimSpace(in.Resolution)
	if target == domain.CaseStatusResolved && resolution == "" {
		return Result{Case: c}, apperrors.NewFieldError("resolution", "is required to resolve a case")
	}
	if in.NewSLADeadline != nil && !IsReopen(from, target) {
		return Result{Case: c}, apperrors.NewFieldError("slaDeadline", "can only be replaced when reopening a case")
	}

	next := c
	next.Status = target
	next.UpdatedAt = now
	if resolution != "" {
		next.Resolution = resolution
	}
	if rootCause := strings.TrimSpace(in.RootCause); rootCause != "" {
		next.RootCause = rootCause
	}

	if from == domain.CaseStatusNew && next.FirstResponseAt == nil {
		next.FirstResponseAt = timePtr(now)
	}
	switch target {
	case domain.CaseStatusResolved:
		if next.ResolvedAt == nil {
			next.ResolvedAt = timePtr(now)
		}
	case domain.CaseStatusClosed:
		if next.ClosedAt == nil {
			next.ClosedAt = timePtr(now)
		}
	}

	result := Result{}
	if in.NewSLADeadline != nil {
		deadline := in.NewSLADeadline.UTC()
		next.SLADeadline = &deadline
		next.SLAMissed = false
		result.SLAReset = true
	}

	result.Case = next
	result.Activity = domain.CaseActivity{
		CaseID:      c.ID,
		Type:        domain.ActivityStatusChanged,
		Title:       fmt.Sprintf("Status changed from %s to %s", from, target),
		Description: domain.StringPtr(resolutionNote(target, resolution)),
		OldValue:    domain.StringPtr(string(from)),
		NewValue:    domain.StringPtr(string(target)),
		Actor:       actor,
		CreatedAt:   now,
	}
	return result, nil
}

func resolutionNote(target domain.CaseStatus, resolution string) string {
	if target != domain.CaseStatusResolved {
		return ""
	}
	return "Resolution: " + resolution
}

func timePtr(t time.Time) *time.Time {
	return &t
}
