package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus tracks delivery progress of an outbox entry.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusCompleted  OutboxStatus = "COMPLETED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

// OutboxChannel names the transport an entry is delivered over.
type OutboxChannel string

const (
	ChannelMessaging OutboxChannel = "MESSAGING"
	ChannelWebhook   OutboxChannel = "WEBHOOK"
	ChannelStream    OutboxChannel = "STREAM"
)

// NotificationEvent keys both outbox entries and message templates.
type NotificationEvent string

const (
	NotificationCaseCreated NotificationEvent = "case_created"
	NotificationSLAUrgent   NotificationEvent = "sla_urgent"
	NotificationSLAMissed   NotificationEvent = "sla_missed"
)

// OutboxEntry is a durable pending notification.
type OutboxEntry struct {
	ID            string
	EventType     string
	Channel       OutboxChannel
	Payload       json.RawMessage
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     *string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// Exhausted reports whether the entry has used up its retries.
func (e OutboxEntry) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}
