package events

import (
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// EventType enumerates supported event identifiers. The values double as
// webhook event names and stream headers.
type EventType string

const (
	EventCaseCreated       EventType = "case.created"
	EventCaseStatusChanged EventType = "case.status_changed"
	EventCaseAssigned      EventType = "case.assigned"
	EventCaseSLAUrgent     EventType = "case.sla_urgent"
	EventCaseSLAMissed     EventType = "case.sla_missed"
)

// AllEventTypes lists every published type.
var AllEventTypes = []EventType{
	EventCaseCreated,
	EventCaseStatusChanged,
	EventCaseAssigned,
	EventCaseSLAUrgent,
	EventCaseSLAMissed,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   domain.ActorKind `json:"type"`
	UserID *string          `json:"userId,omitempty"`
}

// ActorOf converts a domain actor.
func ActorOf(a domain.Actor) Actor {
	return Actor{Type: a.Kind, UserID: a.UserRef()}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	CaseID     string            `json:"caseId"`
	CaseNumber string            `json:"caseNumber"`
	Status     domain.CaseStatus `json:"status"`
	Severity   domain.Severity   `json:"severity"`
	Actor      Actor             `json:"actor"`
	Timestamp  time.Time         `json:"timestamp"`
	Payload    any               `json:"payload,omitempty"`
}

// CaseCreatedPayload payload.
type CaseCreatedPayload struct {
	Title       string     `json:"title"`
	CaseTypeID  string     `json:"caseTypeId"`
	OwnerID     *string    `json:"ownerId,omitempty"`
	SLADeadline *time.Time `json:"slaDeadline,omitempty"`
}

// CaseStatusChangedPayload payload.
type CaseStatusChangedPayload struct {
	OldStatus  domain.CaseStatus `json:"oldStatus"`
	NewStatus  domain.CaseStatus `json:"newStatus"`
	Resolution string            `json:"resolution,omitempty"`
}

// CaseAssignedPayload payload.
type CaseAssignedPayload struct {
	OldOwnerID *string `json:"oldOwnerId,omitempty"`
	NewOwnerID *string `json:"newOwnerId,omitempty"`
}

// CaseSLAPayload payload for urgent and missed alerts.
type CaseSLAPayload struct {
	SLADeadline time.Time `json:"slaDeadline"`
	Minutes     int       `json:"minutes"`
}
