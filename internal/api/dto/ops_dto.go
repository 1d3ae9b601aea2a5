package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// SweepRequest optionally pins the sweep clock, used when an external
// scheduler replays a missed tick.
type SweepRequest struct {
	Now *time.Time `json:"now"`
}

// SweepCase identifies a case picked up by a sweep.
type SweepCase struct {
	ID          string     `json:"id"`
	CaseNumber  string     `json:"caseNumber"`
	SLADeadline *time.Time `json:"slaDeadline"`
}

// SweepResponse summarises a sweep.
type SweepResponse struct {
	Now           time.Time   `json:"now"`
	UrgentTotal   int         `json:"urgentTotal"`
	UrgentAlerted int         `json:"urgentAlerted"`
	UrgentSkipped int         `json:"urgentSkipped"`
	MissedTotal   int         `json:"missedTotal"`
	MissedAlerted int         `json:"missedAlerted"`
	MissedSkipped int         `json:"missedSkipped"`
	Urgent        []SweepCase `json:"urgent"`
	Missed        []SweepCase `json:"missed"`
}

// NewSweepCases maps swept cases.
func NewSweepCases(cases []domain.Case) []SweepCase {
	out := make([]SweepCase, 0, len(cases))
	for _, c := range cases {
		out = append(out, SweepCase{ID: c.ID, CaseNumber: c.CaseNumber, SLADeadline: c.SLADeadline})
	}
	return out
}

// OutboxEntryResponse is the operator view of an outbox entry.
type OutboxEntryResponse struct {
	ID            string               `json:"id"`
	EventType     string               `json:"eventType"`
	Channel       domain.OutboxChannel `json:"channel"`
	Status        domain.OutboxStatus  `json:"status"`
	RetryCount    int                  `json:"retryCount"`
	MaxRetries    int                  `json:"maxRetries"`
	LastError     *string              `json:"lastError"`
	NextAttemptAt time.Time            `json:"nextAttemptAt"`
	CreatedAt     time.Time            `json:"createdAt"`
	Payload       json.RawMessage      `json:"payload"`
}

// NewOutboxEntryResponses maps outbox entries.
func NewOutboxEntryResponses(entries []domain.OutboxEntry) []OutboxEntryResponse {
	out := make([]OutboxEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, OutboxEntryResponse{
			ID:            e.ID,
			EventType:     e.EventType,
			Channel:       e.Channel,
			Status:        e.Status,
			RetryCount:    e.RetryCount,
			MaxRetries:    e.MaxRetries,
			LastError:     e.LastError,
			NextAttemptAt: e.NextAttemptAt,
			CreatedAt:     e.CreatedAt,
			Payload:       e.Payload,
		})
	}
	return out
}
