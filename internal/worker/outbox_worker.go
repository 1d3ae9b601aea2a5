package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Runner is a long-lived loop that returns once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// StartOutboxWorker runs the outbox dispatcher in the background. The
// returned wait func blocks until the loop has exited.
func StartOutboxWorker(ctx context.Context, dispatcher Runner, logger *zap.Logger) (wait func()) {
	if dispatcher == nil {
		return func() {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("outbox worker panicked", zap.Any("panic", r))
			}
		}()
		dispatcher.Run(ctx)
	}()
	return wg.Wait
}
