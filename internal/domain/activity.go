package domain

import "time"

// ActivityType captures what an activity entry records.
type ActivityType string

const (
	ActivityCreated       ActivityType = "CREATED"
	ActivityStatusChanged ActivityType = "STATUS_CHANGED"
	ActivityAssigned      ActivityType = "ASSIGNED"
	ActivityNoteAdded     ActivityType = "NOTE_ADDED"
	ActivityFileAttached  ActivityType = "FILE_ATTACHED"
	ActivitySLAUpdated    ActivityType = "SLA_UPDATED"
	ActivityFieldUpdated  ActivityType = "FIELD_UPDATED"
)

// Machine tags attached to SLA alert activities.
const (
	ActivityTagSLAUrgent = "sla_urgent"
	ActivityTagSLAMissed = "sla_missed"
)

// CaseActivity is an immutable timeline entry.
type CaseActivity struct {
	ID          string
	CaseID      string
	Type        ActivityType
	Title       string
	Description *string
	OldValue    *string
	NewValue    *string
	Tag         *string
	Actor       Actor
	CreatedAt   time.Time
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
