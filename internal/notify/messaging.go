package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/outbox"
)

// ErrMessagingNotConfigured is returned when no endpoint or token is set.
var ErrMessagingNotConfigured = errors.New("messaging endpoint not configured")

// MessagingChannel pushes text messages to a chat target.
type MessagingChannel struct {
	client   HTTPDoer
	endpoint string
	token    string
}

// NewMessagingChannel builds the channel.
func NewMessagingChannel(client HTTPDoer, cfg config.MessagingConfig) *MessagingChannel {
	return &MessagingChannel{client: client, endpoint: cfg.Endpoint, token: cfg.AccessToken}
}

// Deliver implements outbox.Channel.
func (m *MessagingChannel) Deliver(ctx context.Context, entry domain.OutboxEntry) error {
	if m.endpoint == "" || m.token == "" {
		return ErrMessagingNotConfigured
	}
	payload, err := outbox.Decode[outbox.MessagePayload](entry)
	if err != nil {
		return err
	}
	if payload.Target == "" {
		return fmt.Errorf("entry %s: messaging target is empty", entry.ID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("X-Idempotency-Key", entry.ID)

	if err := post(ctx, m.client, req); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}
