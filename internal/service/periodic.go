package service

import (
	"context"
	"fmt"
	"time"

	"env_automation/internal/logger"
)

// RunPeriodic runs fn once immediately and then on every tick until ctx is done.
// Runs are sequential: ticks that fire while fn is still running are dropped,
// so a job never overlaps itself. An error or panic ends only the current run.
func RunPeriodic(ctx context.Context, log *logger.Logger, name string, every time.Duration, fn func(context.Context) error) {
	log = log.Named(name)
	log.Infow("periodic_job_started", "every", every.String())
	defer log.Infow("periodic_job_stopped")

	t := time.NewTicker(every)
	defer t.Stop()

	for {
		if err := runGuarded(ctx, fn); err != nil && ctx.Err() == nil {
			log.Errorw("periodic_job_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func runGuarded(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
