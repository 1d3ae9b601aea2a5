package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spec-kit/case-service/internal/service"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (f *fakeSweeper) Sweep(_ context.Context, _ time.Time) (service.SweepResult, error) {
	f.calls.Add(1)
	if f.panic {
		panic("sweep exploded")
	}
	return service.SweepResult{MissedAlerted: 1}, f.err
}

func TestSLASweepJobSurvivesFailures(t *testing.T) {
	tests := []struct {
		name    string
		sweeper *fakeSweeper
	}{
		{name: "success", sweeper: &fakeSweeper{}},
		{name: "error", sweeper: &fakeSweeper{err: errors.New("db down")}},
		{name: "panic", sweeper: &fakeSweeper{panic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewSLASweepJob(tt.sweeper, nil)
			job.Run(context.Background())
			if got := tt.sweeper.calls.Load(); got != 1 {
				t.Errorf("calls = %d, want 1", got)
			}
		})
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background(), time.Second, nil)
	if _, err := s.Add("every now and then", NewSLASweepJob(&fakeSweeper{}, nil)); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := s.Add("@every 15m", NewSLASweepJob(&fakeSweeper{}, nil)); err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	if _, err := s.Add("*/5 * * * *", NewSLASweepJob(&fakeSweeper{}, nil)); err != nil {
		t.Fatalf("five fields: %v", err)
	}
}

type blockingRunner struct {
	stopped atomic.Bool
}

func (r *blockingRunner) Run(ctx context.Context) {
	<-ctx.Done()
	r.stopped.Store(true)
}

func TestOutboxWorkerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &blockingRunner{}
	wait := StartOutboxWorker(ctx, runner, nil)

	cancel()
	wait()
	if !runner.stopped.Load() {
		t.Error("runner did not observe cancellation")
	}
}
