// Package app assembles the service graph shared by the API server and the
// operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/lock"
	"github.com/spec-kit/case-service/internal/notify"
	"github.com/spec-kit/case-service/internal/observability"
	"github.com/spec-kit/case-service/internal/outbox"
	"github.com/spec-kit/case-service/internal/persistence"
	"github.com/spec-kit/case-service/internal/repository"
	"github.com/spec-kit/case-service/internal/service"
	"github.com/spec-kit/case-service/internal/sla"
)

// Container holds the wired services.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Tokens   *auth.TokenManager
	Users    repository.SupportUserRepository

	Cases      *service.CaseService
	SLA        *service.SLAService
	Outbox     *service.OutboxService
	Dispatcher *outbox.Dispatcher

	closers []func()
}

// Build connects to Postgres and Redis and wires every service. Call Close
// when done.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Tokens:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
	}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = observability.NewMetrics(c.Registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.Postgres = pg
	c.closers = append(c.closers, pg.Close)

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg, logger); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	c.closers = append(c.closers, c.Redis.Close)

	caseRepo := repository.NewCaseRepository(pg)
	activityRepo := repository.NewActivityRepository(pg)
	caseTypeRepo := repository.NewCaseTypeRepository(pg)
	webhookRepo := repository.NewWebhookRepository(pg)
	outboxRepo := repository.NewOutboxRepository(pg)
	c.Users = repository.NewSupportUserRepository(pg)

	dispatcher := events.NewInMemoryDispatcher()
	producer := outbox.NewProducer(outboxRepo, cfg.Outbox.MaxRetries, c.Metrics)

	notifications := service.NewNotificationService(service.NotificationDependencies{
		Outbox:         producer,
		Templates:      repository.NewTemplateRepository(pg),
		Webhooks:       webhookRepo,
		Users:          c.Users,
		CaseTypes:      caseTypeRepo,
		Dispatcher:     dispatcher,
		Messaging:      cfg.Messaging,
		WebhookEnabled: cfg.Webhook.Enabled,
		StreamEnabled:  cfg.Kafka.Enabled,
		Location:       cfg.Cases.Location(),
		Logger:         logger.Named("notifications"),
	})
	notifications.RegisterHandlers()

	c.Cases = service.NewCaseService(service.CaseDependencies{
		Tx:            pg,
		CaseRepo:      caseRepo,
		ActivityRepo:  activityRepo,
		CaseTypeRepo:  caseTypeRepo,
		SequenceRepo:  repository.NewSequenceRepository(pg),
		OrderRepo:     repository.NewOrderRepository(pg),
		Assignment:    service.NewAssignmentService(c.Users),
		Notifications: notifications,
		Dispatcher:    dispatcher,
		Locker:        lock.NewRedisLocker(c.Redis.Client, cfg.Redis.LockPrefix),
		LockTTL:       cfg.Cases.LockTTL(),
		AutoAssign:    cfg.Cases.AutoAssign,
		Location:      cfg.Cases.Location(),
		Logger:        logger.Named("cases"),
	})

	c.SLA = service.NewSLAService(service.SLADependencies{
		Tx:            pg,
		CaseRepo:      caseRepo,
		ActivityRepo:  activityRepo,
		Notifications: notifications,
		Dispatcher:    dispatcher,
		Policy: sla.Policy{
			UrgentWindow:   cfg.SLA.UrgentWindow(),
			UrgentCooldown: cfg.SLA.UrgentCooldown(),
			MissedCooldown: cfg.SLA.MissedCooldown(),
		},
		Logger:  logger.Named("sla"),
		Metrics: c.Metrics,
	})

	c.Outbox = service.NewOutboxService(outboxRepo, logger.Named("outbox"), nil)

	channels, err := c.buildChannels(webhookRepo)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Dispatcher = outbox.NewDispatcher(outboxRepo, channels, outbox.DispatcherConfig{
		BatchSize:       cfg.Outbox.BatchSize,
		Workers:         cfg.Outbox.Workers,
		Lease:           cfg.Outbox.Lease(),
		DeliveryTimeout: cfg.Outbox.DeliveryTimeout(),
		PollInterval:    cfg.Outbox.PollInterval(),
	}, logger.Named("dispatcher"), c.Metrics)

	return c, nil
}

func (c *Container) buildChannels(webhooks repository.WebhookRepository) (map[domain.OutboxChannel]outbox.Channel, error) {
	cfg := c.Config
	client := notify.NewHTTPClient(cfg.HTTPClient)
	c.closers = append(c.closers, client.CloseIdle)

	channels := map[domain.OutboxChannel]outbox.Channel{
		domain.ChannelMessaging: notify.NewMessagingChannel(client, cfg.Messaging),
		domain.ChannelWebhook:   notify.NewWebhookChannel(client, webhooks, c.Logger.Named("webhook")),
	}
	if cfg.Kafka.Enabled {
		producer, err := notify.NewSyncProducer(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		c.closers = append(c.closers, func() {
			if err := producer.Close(); err != nil {
				c.Logger.Warn("close kafka producer", zap.Error(err))
			}
		})
		channels[domain.ChannelStream] = notify.NewStreamChannel(producer, cfg.Kafka.Topic)
	}
	return channels, nil
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
