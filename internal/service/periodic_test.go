package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"env_automation/internal/logger"
)

func TestRunPeriodic_SurvivesErrorsAndPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})

	go func() {
		defer close(done)
		RunPeriodic(ctx, logger.Nop(), "test", 5*time.Millisecond, func(context.Context) error {
			switch runs.Add(1) {
			case 1:
				return errors.New("store unavailable")
			case 2:
				panic("bug")
			}
			return nil
		})
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 4 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 4 runs, got %d", runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunPeriodic did not return after cancel")
	}
}

func TestRunPeriodic_RunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan struct{}, 1)

	go RunPeriodic(ctx, logger.Nop(), "slow", time.Hour, func(context.Context) error {
		select {
		case first <- struct{}{}:
		default:
		}
		return nil
	})

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatalf("first run did not happen before the first tick")
	}
}

func TestSleep(t *testing.T) {
	clk := RealClock()
	if !sleep(context.Background(), clk, 0) {
		t.Fatalf("zero sleep on a live context must return true")
	}
	if !sleep(context.Background(), clk, time.Millisecond) {
		t.Fatalf("sleep should complete")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, clk, time.Hour) {
		t.Fatalf("sleep on a cancelled context must return false")
	}
}
