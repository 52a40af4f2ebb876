package runner

import (
	"context"
	"errors"
	"time"

	"github.com/ecociel/escalator/uc"
	"go.uber.org/zap"
)

type Runner struct {
	Cycle uc.RunCycleUseCase
	Every time.Duration
	// RunImmediately runs one cycle before waiting for the first tick.
	RunImmediately bool

	log *zap.SugaredLogger
}

func NewRunner(cycle uc.RunCycleUseCase, interval time.Duration, log *zap.SugaredLogger) *Runner {
	return &Runner{
		Cycle: cycle,
		Every: interval,
		log:   log,
	}
}

// Run executes a cycle on every tick until ctx is done. A failed cycle is
// logged and retried on the next tick.
func (r *Runner) Run(ctx context.Context) {
	r.log.Infow("runner started", "interval", r.Every.String())
	if r.RunImmediately {
		r.tick(ctx)
	}

	ticker := time.NewTicker(r.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Infow("runner stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// Start runs r in its own goroutine. The returned channel is closed once Run
// has returned, including any cycle in flight when ctx was cancelled.
func (r *Runner) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	return done
}

func (r *Runner) tick(ctx context.Context) {
	_, err := r.Cycle(ctx)
	switch {
	case err == nil:
	case errors.Is(err, uc.ErrCycleInProgress):
		r.log.Infow("cycle skipped, another process holds the lock")
	case ctx.Err() != nil:
		r.log.Infow("cycle interrupted by shutdown", "error", err)
	default:
		r.log.Warnw("cycle failed, retrying next tick", "error", err)
	}
}
