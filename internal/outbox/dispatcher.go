package outbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/observability"
)

const statusWriteTimeout = 5 * time.Second

// Channel delivers one entry. A nil error means the receiver accepted it.
type Channel interface {
	Deliver(ctx context.Context, entry domain.OutboxEntry) error
}

// DispatcherConfig tunes batch size, parallelism and timeouts.
type DispatcherConfig struct {
	BatchSize       int
	Workers         int
	Lease           time.Duration
	DeliveryTimeout time.Duration
	PollInterval    time.Duration
}

// Result summarises one dispatcher pass.
type Result struct {
	Claimed   int
	Completed int
	Failed    int
	Exhausted int
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeExhausted
	outcomeLost
)

// Dispatcher claims due entries and hands them to their channel.
type Dispatcher struct {
	store    Store
	channels map[domain.OutboxChannel]Channel
	cfg      DispatcherConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	backoff  func(attempt int) time.Duration
}

// NewDispatcher builds a dispatcher. Entries on a channel without a
// registered Channel fail and are retried like any delivery failure.
func NewDispatcher(store Store, channels map[domain.OutboxChannel]Channel, cfg DispatcherConfig, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.DeliveryTimeout <= 0 || cfg.DeliveryTimeout > 10*time.Second {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.Lease < cfg.DeliveryTimeout+statusWriteTimeout {
		cfg.Lease = cfg.DeliveryTimeout + statusWriteTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Dispatcher{
		store:    store,
		channels: channels,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		backoff:  NextBackoff,
	}
}

// Run drains the outbox on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("outbox dispatcher started",
		zap.Int("batch", d.cfg.BatchSize),
		zap.Int("workers", d.cfg.Workers),
		zap.Duration("poll", d.cfg.PollInterval))

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopping")
			return
		case <-ticker.C:
			for {
				result, err := d.RunOnce(ctx)
				if err != nil {
					d.logger.Error("outbox pass failed", zap.Error(err))
					break
				}
				// a full batch means more work is likely waiting
				if result.Claimed < d.cfg.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce claims one batch and delivers it with bounded parallelism.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	now := d.now().UTC()
	entries, err := d.store.Claim(ctx, now, now.Add(d.cfg.Lease), d.cfg.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("claim outbox batch: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	result := Result{Claimed: len(entries)}
	if len(entries) == 0 {
		return result, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.cfg.Workers)
	)
	for _, entry := range entries {
		entry := entry
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			out := d.process(ctx, entry)

			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeCompleted:
				result.Completed++
			case outcomeFailed:
				result.Failed++
			case outcomeExhausted:
				result.Failed++
				result.Exhausted++
			}
		}()
	}
	wg.Wait()

	d.logger.Debug("outbox pass finished",
		zap.Int("claimed", result.Claimed),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("exhausted", result.Exhausted))
	return result, nil
}

func (d *Dispatcher) process(ctx context.Context, entry domain.OutboxEntry) (out outcome) {
	log := d.logger.With(
		zap.String("outbox_id", entry.ID),
		zap.String("channel", string(entry.Channel)),
		zap.String("event_type", entry.EventType),
		zap.Int("attempt", entry.RetryCount+1))

	defer func() {
		if r := recover(); r != nil {
			log.Error("outbox delivery panicked", zap.Any("panic", r))
			out = d.fail(ctx, entry, fmt.Errorf("%w: panic: %v", ErrDeliveryFailure, r), log)
		}
	}()

	start := time.Now()
	err := d.deliver(ctx, entry)
	elapsed := time.Since(start)

	if err != nil {
		d.metrics.RecordDelivery(string(entry.Channel), "failed", elapsed)
		return d.fail(ctx, entry, err, log)
	}

	writeCtx, cancel := statusContext(ctx)
	defer cancel()
	if err := d.store.MarkCompleted(writeCtx, entry.ID, d.now().UTC()); err != nil {
		// delivered but not recorded: the lease expires and the entry is sent again
		log.Error("mark outbox entry completed", zap.Error(err))
		return outcomeLost
	}
	d.metrics.RecordDelivery(string(entry.Channel), "completed", elapsed)
	log.Info("outbox entry delivered", zap.Duration("duration", elapsed))
	return outcomeCompleted
}

func (d *Dispatcher) deliver(ctx context.Context, entry domain.OutboxEntry) error {
	channel, ok := d.channels[entry.Channel]
	if !ok {
		return fmt.Errorf("%w: no channel registered for %s", ErrDeliveryFailure, entry.Channel)
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	if err := channel.Deliver(deliverCtx, entry); err != nil {
		if errors.Is(deliverCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out after %s: %v", ErrDeliveryFailure, d.cfg.DeliveryTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, entry domain.OutboxEntry, cause error, log *zap.Logger) outcome {
	next := d.now().UTC().Add(d.backoff(entry.RetryCount + 1))

	writeCtx, cancel := statusContext(ctx)
	defer cancel()
	updated, err := d.store.MarkFailed(writeCtx, entry.ID, cause.Error(), next)
	if err != nil {
		log.Error("mark outbox entry failed", zap.Error(err), zap.NamedError("cause", cause))
		return outcomeLost
	}

	if updated.Exhausted() {
		d.metrics.RecordExhausted(string(entry.Channel), entry.EventType)
		log.Error("outbox entry gave up",
			zap.Error(ErrExhaustedRetries),
			zap.NamedError("cause", cause),
			zap.Int("retry_count", updated.RetryCount),
			zap.Int("max_retries", updated.MaxRetries))
		return outcomeExhausted
	}

	log.Warn("outbox delivery failed, will retry",
		zap.Error(cause),
		zap.Int("retry_count", updated.RetryCount),
		zap.Time("next_attempt_at", next))
	return outcomeFailed
}

// statusContext survives cancellation of the pass so a finished delivery is
// still recorded during shutdown.
func statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
}
