// Package outbox persists notification intents next to business writes and
// drains them to external channels with retries.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/observability"
)

var (
	// ErrDeliveryFailure wraps any transient delivery error.
	ErrDeliveryFailure = errors.New("outbox delivery failed")
	// ErrExhaustedRetries marks an entry that will not be attempted again.
	ErrExhaustedRetries = errors.New("outbox entry exhausted its retries")
	// ErrNotClaimed is returned when a status write finds the entry no longer PROCESSING.
	ErrNotClaimed = errors.New("outbox entry is not claimed")
)

// Store is the persistence the outbox needs. Insert must honour a transaction
// carried in ctx.
type Store interface {
	Insert(ctx context.Context, entry *domain.OutboxEntry) error
	// Claim marks up to limit deliverable entries PROCESSING until leaseUntil and returns them.
	Claim(ctx context.Context, now, leaseUntil time.Time, limit int) ([]domain.OutboxEntry, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	// MarkFailed records a failed attempt and returns the entry with its new retry count.
	MarkFailed(ctx context.Context, id, lastError string, nextAttemptAt time.Time) (*domain.OutboxEntry, error)
	ListExhausted(ctx context.Context, limit, offset int) ([]domain.OutboxEntry, error)
	Requeue(ctx context.Context, id string, at time.Time) error
}

// Payload is implemented by the typed body of each channel.
type Payload interface {
	Channel() domain.OutboxChannel
}

// TextMessage is one message of a messaging payload.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessagePayload is sent verbatim to the messaging endpoint.
type MessagePayload struct {
	Target   string        `json:"target"`
	Messages []TextMessage `json:"messages"`
}

func (MessagePayload) Channel() domain.OutboxChannel { return domain.ChannelMessaging }

// NewTextPayload builds a single text message for target.
func NewTextPayload(target, text string) MessagePayload {
	return MessagePayload{
		Target:   target,
		Messages: []TextMessage{{Type: "text", Text: text}},
	}
}

// WebhookPayload addresses one subscription. The secret is looked up at
// delivery time so rotated secrets apply to pending entries.
type WebhookPayload struct {
	SubscriptionID string          `json:"subscriptionId"`
	URL            string          `json:"url"`
	Event          string          `json:"event"`
	Body           json.RawMessage `json:"body"`
}

func (WebhookPayload) Channel() domain.OutboxChannel { return domain.ChannelWebhook }

// StreamPayload is published to the case event topic.
type StreamPayload struct {
	Key   string          `json:"key"`
	Event string          `json:"event"`
	Value json.RawMessage `json:"value"`
}

func (StreamPayload) Channel() domain.OutboxChannel { return domain.ChannelStream }

// Decode unmarshals entry's payload into T after checking the channel matches.
func Decode[T Payload](entry domain.OutboxEntry) (T, error) {
	var payload T
	if entry.Channel != payload.Channel() {
		return payload, fmt.Errorf("entry %s: channel %s does not carry %T", entry.ID, entry.Channel, payload)
	}
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return payload, fmt.Errorf("entry %s: decode payload: %w", entry.ID, err)
	}
	return payload, nil
}

// Producer writes new entries.
type Producer struct {
	store      Store
	maxRetries int
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewProducer builds a producer whose entries allow maxRetries attempts.
func NewProducer(store Store, maxRetries int, metrics *observability.Metrics) *Producer {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Producer{store: store, maxRetries: maxRetries, metrics: metrics, now: time.Now}
}

// Enqueue persists a PENDING entry. Call it with the business transaction's
// context so the entry commits or rolls back with it.
func (p *Producer) Enqueue(ctx context.Context, eventType string, payload Payload) (*domain.OutboxEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", payload.Channel(), err)
	}
	now := p.now().UTC()
	entry := &domain.OutboxEntry{
		EventType:     eventType,
		Channel:       payload.Channel(),
		Payload:       raw,
		Status:        domain.OutboxStatusPending,
		MaxRetries:    p.maxRetries,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := p.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert outbox entry: %w", err)
	}
	p.metrics.RecordEnqueue(string(entry.Channel))
	return entry, nil
}
