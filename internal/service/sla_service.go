package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/observability"
	"github.com/spec-kit/case-service/internal/repository"
	"github.com/spec-kit/case-service/internal/sla"
)

// SweepResult summarises one SLA sweep.
type SweepResult struct {
	UrgentTotal   int           `json:"urgentTotal"`
	UrgentAlerted int           `json:"urgentAlerted"`
	UrgentSkipped int           `json:"urgentSkipped"`
	MissedTotal   int           `json:"missedTotal"`
	MissedAlerted int           `json:"missedAlerted"`
	MissedSkipped int           `json:"missedSkipped"`
	Urgent        []domain.Case `json:"-"`
	Missed        []domain.Case `json:"-"`
}

// SLAService runs the deadline sweep.
type SLAService struct {
	tx            Transactor
	cases         repository.CaseRepository
	activities    repository.ActivityRepository
	notifications *NotificationService
	dispatcher    events.Dispatcher
	policy        sla.Policy
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// SLADependencies bundles collaborators for the sweep.
type SLADependencies struct {
	Tx            Transactor
	CaseRepo      repository.CaseRepository
	ActivityRepo  repository.ActivityRepository
	Notifications *NotificationService
	Dispatcher    events.Dispatcher
	Policy        sla.Policy
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	policy := deps.Policy
	if policy == (sla.Policy{}) {
		policy = sla.DefaultPolicy()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAService{
		tx:            deps.Tx,
		cases:         deps.CaseRepo,
		activities:    deps.ActivityRepo,
		notifications: deps.Notifications,
		dispatcher:    deps.Dispatcher,
		policy:        policy,
		logger:        logger,
		metrics:       deps.Metrics,
	}
}

// Sweep alerts on open cases that are close to or past their deadline. The
// last alert's age is the only gate, so overlapping sweeps are safe; at worst
// a case is alerted twice within one cooldown. It never changes a status.
func (s *SLAService) Sweep(ctx context.Context, now time.Time) (result SweepResult, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordSweep(err, time.Since(start)) }()

	now = now.UTC()
	candidates, err := s.cases.ListSLACandidates(ctx, s.policy.Horizon(now))
	if err != nil {
		return SweepResult{}, fmt.Errorf("list sla candidates: %w", err)
	}

	for _, c := range candidates {
		kind := s.policy.Classify(c, now)
		switch kind {
		case sla.AlertUrgent:
			result.UrgentTotal++
		case sla.AlertMissed:
			result.MissedTotal++
		default:
			continue
		}

		alerted, alertErr := s.alert(ctx, &c, kind, now)
		if alertErr != nil {
			s.logger.Error("sla alert failed",
				zap.String("case_id", c.ID),
				zap.String("kind", string(kind)),
				zap.Error(alertErr))
		}
		outcome := "skipped"
		if alerted {
			outcome = "alerted"
		}
		s.metrics.RecordSLAAlert(string(kind), outcome)

		switch kind {
		case sla.AlertUrgent:
			result.Urgent = append(result.Urgent, c)
			if alerted {
				result.UrgentAlerted++
			} else {
				result.UrgentSkipped++
			}
		case sla.AlertMissed:
			result.Missed = append(result.Missed, c)
			if alerted {
				result.MissedAlerted++
			} else {
				result.MissedSkipped++
			}
		}
	}

	s.logger.Info("sla sweep finished",
		zap.Time("now", now),
		zap.Int("urgent_total", result.UrgentTotal),
		zap.Int("urgent_alerted", result.UrgentAlerted),
		zap.Int("missed_total", result.MissedTotal),
		zap.Int("missed_alerted", result.MissedAlerted))
	return result, nil
}

// alert records one alert unless the previous one is inside the cooldown.
// c is updated in place when the alert marks the case missed.
func (s *SLAService) alert(ctx context.Context, c *domain.Case, kind sla.AlertKind, now time.Time) (bool, error) {
	last, err := s.activities.LatestByTag(ctx, c.ID, kind.Tag())
	if err != nil {
		return false, fmt.Errorf("load last %s alert: %w", kind, err)
	}
	var lastAt *time.Time
	if last != nil {
		lastAt = &last.CreatedAt
	}
	if !s.policy.ShouldAlert(kind, lastAt, now) {
		return false, nil
	}

	activity := sla.AlertActivity(*c, kind, now)
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.activities.Create(ctx, &activity); err != nil {
			return fmt.Errorf("record alert activity: %w", err)
		}
		if kind == sla.AlertMissed && !c.SLAMissed {
			if err := s.cases.MarkSLAMissed(ctx, c.ID); err != nil {
				return fmt.Errorf("mark sla missed: %w", err)
			}
		}

		event := domain.NotificationSLAUrgent
		eventType := events.EventCaseSLAUrgent
		minutes := sla.MinutesRemaining(*c.SLADeadline, now)
		if kind == sla.AlertMissed {
			event = domain.NotificationSLAMissed
			eventType = events.EventCaseSLAMissed
			minutes = sla.MinutesOverdue(*c.SLADeadline, now)
		}
		if _, err := s.notifications.Notify(ctx, event, s.notifications.CaseVars(ctx, *c, now)); err != nil {
			return err
		}
		return publishEvent(ctx, s.dispatcher, caseEvent(eventType, *c, domain.SystemActor(), events.CaseSLAPayload{
			SLADeadline: *c.SLADeadline,
			Minutes:     minutes,
		}), now)
	})
	if err != nil {
		return false, err
	}
	if kind == sla.AlertMissed {
		c.SLAMissed = true
	}
	return true, nil
}
