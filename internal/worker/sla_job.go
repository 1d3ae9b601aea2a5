package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/service"
)

// Sweeper runs one SLA sweep.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (service.SweepResult, error)
}

// SLASweepJob triggers the SLA sweep on schedule. Failures are logged and
// the next tick runs normally.
type SLASweepJob struct {
	sweeper Sweeper
	clock   func() time.Time
	logger  *zap.Logger
}

// NewSLASweepJob creates the job.
func NewSLASweepJob(sweeper Sweeper, logger *zap.Logger) *SLASweepJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLASweepJob{sweeper: sweeper, clock: time.Now, logger: logger}
}

// Name implements Job.
func (j *SLASweepJob) Name() string { return "sla_sweep" }

// Run implements Job.
func (j *SLASweepJob) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("sla sweep panicked", zap.Any("panic", r))
		}
	}()

	result, err := j.sweeper.Sweep(ctx, j.clock())
	if err != nil {
		j.logger.Error("sla sweep failed", zap.Error(err))
		return
	}
	j.logger.Debug("sla sweep job done",
		zap.Int("urgent_alerted", result.UrgentAlerted),
		zap.Int("missed_alerted", result.MissedAlerted))
}
