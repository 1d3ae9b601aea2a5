// Package sla computes case deadlines and classifies cases for the periodic sweep.
package sla

import (
	"fmt"
	"math"
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

const (
	DefaultUrgentWindow   = 30 * time.Minute
	DefaultUrgentCooldown = 120 * time.Minute
	DefaultMissedCooldown = 360 * time.Minute
)

// AlertKind classifies a case during a sweep.
type AlertKind string

const (
	AlertNone   AlertKind = ""
	AlertUrgent AlertKind = "urgent"
	AlertMissed AlertKind = "missed"
)

// Tag is the activity tag used to deduplicate alerts of this kind.
func (k AlertKind) Tag() string {
	switch k {
	case AlertUrgent:
		return domain.ActivityTagSLAUrgent
	case AlertMissed:
		return domain.ActivityTagSLAMissed
	}
	return ""
}

// Policy holds the sweep window and alert cooldowns.
type Policy struct {
	UrgentWindow   time.Duration
	UrgentCooldown time.Duration
	MissedCooldown time.Duration
}

// DefaultPolicy returns the standard 30m window with 120m/360m cooldowns.
func DefaultPolicy() Policy {
	return Policy{
		UrgentWindow:   DefaultUrgentWindow,
		UrgentCooldown: DefaultUrgentCooldown,
		MissedCooldown: DefaultMissedCooldown,
	}
}

// ComputeDeadline returns createdAt plus the policy's SLA minutes, or nil when
// the case type carries no SLA.
func ComputeDeadline(policy domain.CaseTypePolicy, createdAt time.Time) *time.Time {
	if policy.DefaultSLAMinutes <= 0 {
		return nil
	}
	deadline := createdAt.Add(time.Duration(policy.DefaultSLAMinutes) * time.Minute)
	return &deadline
}

// Horizon is the latest deadline a sweep at now needs to look at.
func (p Policy) Horizon(now time.Time) time.Time {
	return now.Add(p.UrgentWindow)
}

// Classify places c in the urgent or missed set, or neither.
func (p Policy) Classify(c domain.Case, now time.Time) AlertKind {
	if !c.Status.IsOpen() || c.SLADeadline == nil {
		return AlertNone
	}
	deadline := *c.SLADeadline
	switch {
	case deadline.Before(now):
		return AlertMissed
	case !deadline.After(p.Horizon(now)):
		return AlertUrgent
	}
	return AlertNone
}

// Cooldown returns how long an alert of kind suppresses repeats.
func (p Policy) Cooldown(kind AlertKind) time.Duration {
	if kind == AlertMissed {
		return p.MissedCooldown
	}
	return p.UrgentCooldown
}

// ShouldAlert is false while the previous alert of the same kind is younger
// than the cooldown.
func (p Policy) ShouldAlert(kind AlertKind, lastAlertAt *time.Time, now time.Time) bool {
	if kind == AlertNone {
		return false
	}
	if lastAlertAt == nil {
		return true
	}
	return now.Sub(*lastAlertAt) >= p.Cooldown(kind)
}

// MinutesRemaining rounds the time left before the deadline up to whole minutes.
func MinutesRemaining(deadline, now time.Time) int {
	return int(math.Ceil(deadline.Sub(now).Minutes()))
}

// MinutesOverdue rounds the time since the deadline down to whole minutes.
func MinutesOverdue(deadline, now time.Time) int {
	return int(math.Floor(now.Sub(deadline).Minutes()))
}

// AlertActivity builds the SLA_UPDATED entry recorded for an alert.
func AlertActivity(c domain.Case, kind AlertKind, now time.Time) domain.CaseActivity {
	var title, value string
	switch kind {
	case AlertMissed:
		overdue := MinutesOverdue(*c.SLADeadline, now)
		title = fmt.Sprintf("SLA missed by %d minutes", overdue)
		value = fmt.Sprintf("%d", overdue)
	default:
		remaining := MinutesRemaining(*c.SLADeadline, now)
		title = fmt.Sprintf("SLA deadline in %d minutes", remaining)
		value = fmt.Sprintf("%d", remaining)
	}
	tag := kind.Tag()
	return domain.CaseActivity{
		CaseID:    c.ID,
		Type:      domain.ActivitySLAUpdated,
		Title:     title,
		NewValue:  domain.StringPtr(value),
		Tag:       &tag,
		Actor:     domain.SystemActor(),
		CreatedAt: now,
	}
}
