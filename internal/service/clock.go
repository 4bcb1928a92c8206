package service

import (
	"context"
	"time"
)

// Clock abstracts wall time so loops and due computations can be driven in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the process clock, reporting UTC.
func RealClock() Clock { return realClock{} }

// sleep waits for d. It returns false if ctx was cancelled first.
func sleep(ctx context.Context, clk Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-clk.After(d):
		return ctx.Err() == nil
	}
}

// toUTC is the single local-to-UTC conversion point for schedule times.
// Stored times carry their own offset, so tz is not applied; per-schedule
// zone offsets and DST are not modelled.
func toUTC(t time.Time, tz string) time.Time {
	_ = tz
	return t.UTC()
}
