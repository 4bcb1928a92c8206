package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"env_automation/internal/device"
	"env_automation/internal/logger"
	"env_automation/internal/models"
	"env_automation/internal/repository"
)

// ErrPollerRunning is returned by Start on a scheduler that is already running.
var ErrPollerRunning = errors.New("poll scheduler already running")

// DriverResolver returns the driver instance for a stored device.
type DriverResolver interface {
	Resolve(d models.Device) (device.Device, error)
}

// ReadingCache holds the latest reading per device.
type ReadingCache interface {
	Put(ctx context.Context, r models.Reading) error
	Latest(ctx context.Context, deviceID int64) (*models.Reading, error)
}

type PollerConfig struct {
	ReconcileInterval time.Duration
	Retention         time.Duration // zero disables history cleanup
	ErrorBackoff      time.Duration
	DrainTimeout      time.Duration
	DefaultInterval   time.Duration // used when a device has no poll_interval
	IntervalUnit      time.Duration // unit of Device.PollInterval, defaults to time.Second
}

// PollScheduler runs one polling loop per pollable device plus a reconcile loop.
type PollScheduler struct {
	devices  repository.DeviceRepo
	readings repository.ReadingRepo
	drivers  DriverResolver
	cache    ReadingCache
	cfg      PollerConfig
	clock    Clock
	log      *logger.Logger

	mu          sync.Mutex
	running     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	loops       map[int64]*pollLoop
	deviceCount int
	wg          sync.WaitGroup
}

type pollLoop struct {
	cancel context.CancelFunc
}

// NewPollScheduler builds a stopped scheduler. cache may be nil.
func NewPollScheduler(devices repository.DeviceRepo, readings repository.ReadingRepo, drivers DriverResolver,
	cache ReadingCache, cfg PollerConfig, clock Clock, log *logger.Logger) *PollScheduler {
	if cfg.IntervalUnit <= 0 {
		cfg.IntervalUnit = time.Second
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 60 * cfg.IntervalUnit
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 300 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 60 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	if clock == nil {
		clock = RealClock()
	}
	return &PollScheduler{
		devices:  devices,
		readings: readings,
		drivers:  drivers,
		cache:    cache,
		cfg:      cfg,
		clock:    clock,
		log:      log.Named("poller"),
		loops:    make(map[int64]*pollLoop),
	}
}

// Start loads the pollable devices and spawns their loops. Loops run until
// Stop is called or ctx is cancelled.
func (s *PollScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return ErrPollerRunning
	}

	// Load outside the lock so Status stays responsive during a slow query.
	devs, err := s.devices.ListPollable(ctx)
	if err != nil {
		return fmt.Errorf("load pollable devices: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrPollerRunning
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.loops = make(map[int64]*pollLoop, len(devs))
	for _, d := range devs {
		s.startLoopLocked(d.ID)
	}
	s.deviceCount = len(devs)

	s.wg.Add(1)
	go s.reconcileLoop(s.runCtx)

	s.log.Infow("poller_started", "devices", len(devs))
	return nil
}

// Stop cancels every loop and waits for them to exit, up to DrainTimeout.
func (s *PollScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.loops = make(map[int64]*pollLoop)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Infow("poller_stopped")
		return nil
	case <-time.After(s.cfg.DrainTimeout):
		return fmt.Errorf("poll loops did not stop within %s", s.cfg.DrainTimeout)
	}
}

func (s *PollScheduler) Status() models.PollerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.PollerStatus{
		Running:     s.running,
		DeviceCount: s.deviceCount,
		ActiveLoops: len(s.loops),
	}
}

// Reconcile starts loops for newly pollable devices, cancels loops of devices
// that are no longer pollable, and deletes history older than the retention.
func (s *PollScheduler) Reconcile(ctx context.Context) error {
	devs, err := s.devices.ListPollable(ctx)
	if err != nil {
		return fmt.Errorf("load pollable devices: %w", err)
	}
	want := make(map[int64]struct{}, len(devs))
	for _, d := range devs {
		want[d.ID] = struct{}{}
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	var started, stopped int
	for id := range want {
		if _, ok := s.loops[id]; !ok {
			s.startLoopLocked(id)
			started++
		}
	}
	for id, l := range s.loops {
		if _, ok := want[id]; !ok {
			l.cancel()
			delete(s.loops, id)
			stopped++
		}
	}
	s.deviceCount = len(devs)
	s.mu.Unlock()

	if started > 0 || stopped > 0 {
		s.log.Infow("poller_reconciled", "started", started, "stopped", stopped)
	}
	return s.cleanupHistory(ctx)
}

func (s *PollScheduler) cleanupHistory(ctx context.Context) error {
	if s.cfg.Retention <= 0 {
		return nil
	}
	cutoff := s.clock.Now().UTC().Add(-s.cfg.Retention)
	n, err := s.readings.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("history cleanup: %w", err)
	}
	if n > 0 {
		s.log.Infow("history_cleaned", "deleted", n, "cutoff", cutoff)
	}
	return nil
}

func (s *PollScheduler) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()
	for sleep(ctx, s.clock, s.cfg.ReconcileInterval) {
		if err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
			s.log.Errorw("reconcile_failed", "error", err)
		}
	}
}

// startLoopLocked must be called with s.mu held.
func (s *PollScheduler) startLoopLocked(id int64) {
	ctx, cancel := context.WithCancel(s.runCtx)
	l := &pollLoop{cancel: cancel}
	s.loops[id] = l
	s.wg.Add(1)
	go s.runLoop(ctx, id, l)
}

// removeLoop drops l from the loop set unless it was already replaced.
func (s *PollScheduler) removeLoop(id int64, l *pollLoop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.loops[id]; ok && cur == l {
		delete(s.loops, id)
	}
}

func (s *PollScheduler) runLoop(ctx context.Context, id int64, l *pollLoop) {
	defer s.wg.Done()
	defer l.cancel()
	defer s.removeLoop(id, l)

	log := s.log.With("device_id", id)
	log.Debugw("poll_loop_started")

	for ctx.Err() == nil {
		wait, keep, err := s.pollOnce(ctx, id)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			log.Errorw("poll_loop_error", "error", err, "backoff", s.cfg.ErrorBackoff.String())
			wait = s.cfg.ErrorBackoff
		case !keep:
			log.Infow("poll_loop_exited", "reason", "device no longer pollable")
			return
		}
		if !sleep(ctx, s.clock, wait) {
			return
		}
	}
}

// pollOnce runs one iteration for a device. It returns the wait until the next
// iteration and whether the device is still pollable. A failing poll is recorded
// on the device, not returned; errors are for the loop body itself.
func (s *PollScheduler) pollOnce(ctx context.Context, id int64) (wait time.Duration, keep bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll iteration panicked: %v", r)
		}
	}()

	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return 0, false, fmt.Errorf("load device: %w", err)
	}
	if d == nil || !d.Pollable() {
		return 0, false, nil
	}
	wait = s.interval(*d)

	var (
		rd      models.Reading
		pollErr error
	)
	drv, err := s.drivers.Resolve(*d)
	if err != nil {
		pollErr = err
	} else {
		rd, pollErr = device.SafePoll(ctx, drv)
	}
	// Cancelled during I/O: leave no partial state behind.
	if ctx.Err() != nil {
		return 0, false, ctx.Err()
	}

	now := s.clock.Now().UTC()
	lastErr := ""
	var storeErr error
	if pollErr != nil {
		lastErr = pollErr.Error()
		s.log.Warnw("poll_failed", "device_id", id, "error", pollErr)
	} else {
		rd.DeviceID = d.ID
		if rd.Timestamp.IsZero() {
			rd.Timestamp = now
		}
		rd.Timestamp = rd.Timestamp.UTC()
		if _, storeErr = s.readings.Append(ctx, rd); storeErr != nil {
			lastErr = "store reading: " + storeErr.Error()
		} else if s.cache != nil {
			if err := s.cache.Put(ctx, rd); err != nil {
				s.log.Warnw("cache_put_failed", "device_id", id, "error", err)
			}
		}
	}

	if err := s.devices.UpdatePollStatus(ctx, d.ID, now, lastErr); err != nil {
		return 0, false, fmt.Errorf("update poll status: %w", err)
	}
	if storeErr != nil {
		return 0, false, fmt.Errorf("store reading: %w", storeErr)
	}
	return wait, true, nil
}

func (s *PollScheduler) interval(d models.Device) time.Duration {
	if d.PollInterval <= 0 {
		return s.cfg.DefaultInterval
	}
	return time.Duration(d.PollInterval) * s.cfg.IntervalUnit
}
