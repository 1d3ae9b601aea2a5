package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context)
}

// Scheduler runs jobs on cron specs. Both the five field format and
// descriptors such as "@every 15m" are accepted.
type Scheduler struct {
	c       *cron.Cron
	ctx     context.Context
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler creates a scheduler whose runs derive from ctx and are bounded by timeout.
func NewScheduler(ctx context.Context, timeout time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(
		cron.WithParser(cron.NewParser(
			cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
		)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{c: c, ctx: ctx, timeout: timeout, logger: logger}
}

// Add registers job under spec.
func (s *Scheduler) Add(spec string, job Job) (cron.EntryID, error) {
	id, err := s.c.AddFunc(spec, func() {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
			defer cancel()
		}
		job.Run(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s job %q: %w", job.Name(), spec, err)
	}
	s.logger.Info("job scheduled",
		zap.String("job", job.Name()),
		zap.String("spec", spec),
		zap.Int("entry_id", int(id)))
	return id, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler starting")
	s.c.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
