package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/outbox"
	"github.com/spec-kit/case-service/internal/render"
	"github.com/spec-kit/case-service/internal/repository"
	"github.com/spec-kit/case-service/internal/sla"
)

const deadlineLayout = "2006-01-02 15:04 MST"

// Enqueuer persists outbox entries in the caller's transaction.
type Enqueuer interface {
	Enqueue(ctx context.Context, eventType string, payload outbox.Payload) (*domain.OutboxEntry, error)
}

// NotificationService renders templates and turns domain events into outbox
// entries for every configured channel.
type NotificationService struct {
	outbox     Enqueuer
	templates  repository.TemplateRepository
	webhooks   repository.WebhookRepository
	users      repository.SupportUserRepository
	caseTypes  repository.CaseTypeRepository
	dispatcher events.Dispatcher
	messaging  config.MessagingConfig
	webhook    bool
	stream     bool
	location   *time.Location
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	Outbox         Enqueuer
	Templates      repository.TemplateRepository
	Webhooks       repository.WebhookRepository
	Users          repository.SupportUserRepository
	CaseTypes      repository.CaseTypeRepository
	Dispatcher     events.Dispatcher
	Messaging      config.MessagingConfig
	WebhookEnabled bool
	StreamEnabled  bool
	Location       *time.Location
	Logger         *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		outbox:     deps.Outbox,
		templates:  deps.Templates,
		webhooks:   deps.Webhooks,
		users:      deps.Users,
		caseTypes:  deps.CaseTypes,
		dispatcher: deps.Dispatcher,
		messaging:  deps.Messaging,
		webhook:    deps.WebhookEnabled,
		stream:     deps.StreamEnabled,
		location:   loc,
		logger:     logger,
	}
}

// RegisterHandlers subscribes webhook and stream fan-out to case events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		if n.webhook {
			n.dispatcher.Subscribe(eventType, n.handleWebhooks)
		}
		if n.stream {
			n.dispatcher.Subscribe(eventType, n.handleStream)
		}
	}
}

// Notify renders the template for event and enqueues a messaging entry. It
// must run inside the transaction of the change that caused it.
func (n *NotificationService) Notify(ctx context.Context, event domain.NotificationEvent, vars map[string]string) (*domain.OutboxEntry, error) {
	if !n.messaging.Configured() {
		n.logger.Warn("messaging not configured, notification dropped",
			zap.String("event", string(event)),
			zap.String("case_number", vars["caseNumber"]))
		return nil, nil
	}
	body, err := n.templateBody(ctx, event)
	if err != nil {
		return nil, err
	}
	text := render.Render(body, vars)
	entry, err := n.outbox.Enqueue(ctx, string(event), outbox.NewTextPayload(n.messaging.Target, text))
	if err != nil {
		return nil, fmt.Errorf("enqueue %s notification: %w", event, err)
	}
	return entry, nil
}

func (n *NotificationService) templateBody(ctx context.Context, event domain.NotificationEvent) (string, error) {
	if n.templates != nil {
		tpl, err := n.templates.GetActiveByEvent(ctx, event)
		switch {
		case err == nil:
			return tpl.Body, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return "", fmt.Errorf("load %s template: %w", event, err)
		}
	}
	body, ok := render.DefaultTemplate(event)
	if !ok {
		return "", fmt.Errorf("no template for event %s", event)
	}
	return body, nil
}

// CaseVars builds the template variables for c. Lookup failures leave the
// affected variable empty.
func (n *NotificationService) CaseVars(ctx context.Context, c domain.Case, now time.Time) map[string]string {
	vars := map[string]string{
		"caseId":       c.ID,
		"caseNumber":   c.CaseNumber,
		"title":        c.Title,
		"customerName": c.CustomerName,
		"severity":     string(c.Severity),
		"status":       string(c.Status),
		"category":     c.Category,
	}
	if c.SLADeadline != nil {
		deadline := *c.SLADeadline
		vars["slaDeadline"] = deadline.In(n.location).Format(deadlineLayout)
		if deadline.Before(now) {
			vars["minutesOverdue"] = strconv.Itoa(sla.MinutesOverdue(deadline, now))
		} else {
			vars["minutesRemaining"] = strconv.Itoa(sla.MinutesRemaining(deadline, now))
		}
	}
	if c.OwnerID != nil && n.users != nil {
		if owner, err := n.users.GetByID(ctx, *c.OwnerID); err == nil {
			vars["ownerName"] = owner.Name
		} else {
			n.logger.Debug("owner lookup for template failed", zap.String("case_id", c.ID), zap.Error(err))
		}
	}
	if c.CaseTypeName != "" {
		vars["caseType"] = c.CaseTypeName
	} else if n.caseTypes != nil {
		if policy, err := n.caseTypes.GetByID(ctx, c.CaseTypeID); err == nil {
			vars["caseType"] = policy.Name
		} else {
			n.logger.Debug("case type lookup for template failed", zap.String("case_id", c.ID), zap.Error(err))
		}
	}
	return vars
}

type webhookBody struct {
	Event      events.EventType  `json:"event"`
	CaseID     string            `json:"caseId"`
	CaseNumber string            `json:"caseNumber"`
	Status     domain.CaseStatus `json:"status"`
	Severity   domain.Severity   `json:"severity"`
	OccurredAt time.Time         `json:"occurredAt"`
	Data       any               `json:"data,omitempty"`
}

func (n *NotificationService) handleWebhooks(ctx context.Context, event events.Event) error {
	subs, err := n.webhooks.ListActiveByEvent(ctx, string(event.Type))
	if err != nil {
		return fmt.Errorf("list webhook subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	body, err := json.Marshal(webhookBody{
		Event:      event.Type,
		CaseID:     event.CaseID,
		CaseNumber: event.CaseNumber,
		Status:     event.Status,
		Severity:   event.Severity,
		OccurredAt: event.Timestamp.UTC(),
		Data:       event.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}
	for _, sub := range subs {
		if !sub.Wants(string(event.Type)) {
			continue
		}
		payload := outbox.WebhookPayload{
			SubscriptionID: sub.ID,
			URL:            sub.URL,
			Event:          string(event.Type),
			Body:           body,
		}
		if _, err := n.outbox.Enqueue(ctx, string(event.Type), payload); err != nil {
			return fmt.Errorf("enqueue webhook for %s: %w", sub.ID, err)
		}
	}
	return nil
}

func (n *NotificationService) handleStream(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	payload := outbox.StreamPayload{Key: event.CaseID, Event: string(event.Type), Value: value}
	if _, err := n.outbox.Enqueue(ctx, string(event.Type), payload); err != nil {
		return fmt.Errorf("enqueue stream event: %w", err)
	}
	return nil
}
