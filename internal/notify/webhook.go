package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/outbox"
)

const (
	HeaderEvent     = "X-Case-Event"
	HeaderSignature = "X-Case-Signature"
	HeaderDelivery  = "X-Case-Delivery"
)

// SubscriptionLookup resolves the current state of a subscription.
type SubscriptionLookup interface {
	GetByID(ctx context.Context, id string) (*domain.WebhookSubscription, error)
}

// WebhookChannel posts signed case events to subscriber URLs.
type WebhookChannel struct {
	client        HTTPDoer
	subscriptions SubscriptionLookup
	logger        *zap.Logger
}

// NewWebhookChannel builds the channel.
func NewWebhookChannel(client HTTPDoer, subscriptions SubscriptionLookup, logger *zap.Logger) *WebhookChannel {
	return &WebhookChannel{client: client, subscriptions: subscriptions, logger: logger}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver implements outbox.Channel. Entries for removed or disabled
// subscriptions are dropped.
func (w *WebhookChannel) Deliver(ctx context.Context, entry domain.OutboxEntry) error {
	payload, err := outbox.Decode[outbox.WebhookPayload](entry)
	if err != nil {
		return err
	}

	sub, err := w.subscriptions.GetByID(ctx, payload.SubscriptionID)
	if errors.Is(err, pgx.ErrNoRows) {
		w.logger.Info("webhook subscription removed, dropping delivery",
			zap.String("outbox_id", entry.ID), zap.String("subscription_id", payload.SubscriptionID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", payload.SubscriptionID, err)
	}
	if !sub.Active || !sub.Wants(payload.Event) {
		w.logger.Info("webhook subscription inactive, dropping delivery",
			zap.String("outbox_id", entry.ID), zap.String("subscription_id", sub.ID))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload.Body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, payload.Event)
	req.Header.Set(HeaderDelivery, entry.ID)
	if sub.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(sub.Secret, payload.Body))
	}

	if err := post(ctx, w.client, req); err != nil {
		return fmt.Errorf("webhook %s: %w", sub.ID, err)
	}
	return nil
}
