package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"env_automation/internal/device"
	"env_automation/internal/logger"
	"env_automation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// newTestPoller polls with millisecond intervals on the real clock.
func newTestPoller(st *fakeStore, drivers *fakeDrivers, cache ReadingCache) *PollScheduler {
	return NewPollScheduler(st.devices, st.readings, drivers, cache, PollerConfig{
		ReconcileInterval: time.Hour,
		ErrorBackoff:      10 * time.Millisecond,
		DrainTimeout:      time.Second,
		IntervalUnit:      time.Millisecond,
	}, RealClock(), logger.Nop())
}

func constantPoll(v float64) func(ctx context.Context) (models.Reading, error) {
	return func(ctx context.Context) (models.Reading, error) {
		return models.Reading{Value: floatPtr(v), Payload: map[string]any{"temperature": v}}, nil
	}
}

type memCache struct {
	puts atomic.Int32
}

func (c *memCache) Put(ctx context.Context, r models.Reading) error {
	c.puts.Add(1)
	return nil
}

func (c *memCache) Latest(ctx context.Context, deviceID int64) (*models.Reading, error) {
	return nil, nil
}

func TestPollScheduler_PollsAndStops(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	id, _ := st.devices.Create(ctx, models.Device{Name: "probe", Type: "thermal", PollEnabled: true, PollInterval: 10, IsActive: true})
	_, _ = st.devices.Create(ctx, models.Device{Name: "idle", Type: "relay", PollEnabled: false, IsActive: true})
	drivers := &fakeDrivers{byID: map[int64]device.Device{id: &stubDevice{pollFn: constantPoll(21.5)}}}
	cache := &memCache{}

	p := newTestPoller(st, drivers, cache)
	require.NoError(t, p.Start(ctx))
	assert.ErrorIs(t, p.Start(ctx), ErrPollerRunning)

	require.Eventually(t, func() bool { return st.readings.count() >= 2 }, waitFor, tick)

	status := p.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.DeviceCount)
	assert.Equal(t, 1, status.ActiveLoops)

	require.NoError(t, p.Stop())
	status = p.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 0, status.ActiveLoops)
	assert.NoError(t, p.Stop(), "second Stop is a no-op")

	rd, err := st.readings.Latest(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rd)
	assert.Equal(t, id, rd.DeviceID)
	assert.False(t, rd.Timestamp.IsZero())
	assert.Equal(t, time.UTC, rd.Timestamp.Location())
	assert.GreaterOrEqual(t, int(cache.puts.Load()), 2)

	d, _ := st.devices.GetByID(ctx, id)
	require.NotNil(t, d.LastPolled)
	assert.Empty(t, d.LastError)
}

func TestPollScheduler_FailureRecordedOnDevice(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	id, _ := st.devices.Create(ctx, models.Device{Name: "flaky", Type: "mqtt", PollEnabled: true, PollInterval: 10, IsActive: true})
	drivers := &fakeDrivers{byID: map[int64]device.Device{id: &stubDevice{
		pollFn: func(ctx context.Context) (models.Reading, error) {
			return models.Reading{}, device.Fail(device.CodeUnavailable, "sensor offline")
		},
	}}}

	p := newTestPoller(st, drivers, nil)
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop() })

	// The loop keeps running across failures.
	require.Eventually(t, func() bool { return st.devices.statusCount() >= 2 }, waitFor, tick)
	assert.Equal(t, 0, st.readings.count())

	d, _ := st.devices.GetByID(ctx, id)
	assert.Contains(t, d.LastError, "sensor offline")
	assert.Equal(t, 1, p.Status().ActiveLoops)
}

func TestPollScheduler_PanickingDriverDoesNotKillLoop(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	id, _ := st.devices.Create(ctx, models.Device{Name: "bad", Type: "thermal", PollEnabled: true, PollInterval: 10, IsActive: true})
	var calls atomic.Int32
	drivers := &fakeDrivers{byID: map[int64]device.Device{id: &stubDevice{
		pollFn: func(ctx context.Context) (models.Reading, error) {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			return models.Reading{Value: floatPtr(1)}, nil
		},
	}}}

	p := newTestPoller(st, drivers, nil)
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop() })

	require.Eventually(t, func() bool { return st.readings.count() >= 1 }, waitFor, tick)
	assert.Equal(t, 1, p.Status().ActiveLoops)
}

func TestPollScheduler_StoreFailureBacksOff(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	st.readings.appendErr = errors.New("disk full")
	id, _ := st.devices.Create(ctx, models.Device{Name: "probe", Type: "thermal", PollEnabled: true, PollInterval: 10, IsActive: true})
	drivers := &fakeDrivers{byID: map[int64]device.Device{id: &stubDevice{pollFn: constantPoll(3)}}}

	p := newTestPoller(st, drivers, nil)
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop() })

	require.Eventually(t, func() bool { return st.devices.statusCount() >= 1 }, waitFor, tick)
	d, _ := st.devices.GetByID(ctx, id)
	assert.True(t, strings.HasPrefix(d.LastError, "store reading"), d.LastError)
}

func TestPollScheduler_LoopExitsWhenDeviceRemoved(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	id, _ := st.devices.Create(ctx, models.Device{Name: "probe", Type: "thermal", PollEnabled: true, PollInterval: 10, IsActive: true})
	drivers := &fakeDrivers{byID: map[int64]device.Device{id: &stubDevice{pollFn: constantPoll(5)}}}

	p := newTestPoller(st, drivers, nil)
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop() })
	require.Eventually(t, func() bool { return st.readings.count() >= 1 }, waitFor, tick)

	require.NoError(t, st.devices.Delete(ctx, id))
	require.Eventually(t, func() bool { return p.Status().ActiveLoops == 0 }, waitFor, tick)
	assert.True(t, p.Status().Running)
}

func TestPollScheduler_Reconcile(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	drivers := &fakeDrivers{byID: map[int64]device.Device{}}

	p := NewPollScheduler(st.devices, st.readings, drivers, nil, PollerConfig{
		ReconcileInterval: time.Hour,
		Retention:         24 * time.Hour,
		IntervalUnit:      time.Millisecond,
	}, RealClock(), logger.Nop())
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop() })
	assert.Equal(t, 0, p.Status().ActiveLoops)

	old := models.Reading{DeviceID: 99, Timestamp: time.Now().UTC().Add(-48 * time.Hour), Value: floatPtr(1)}
	st.readings.add(old)

	id, _ := st.devices.Create(ctx, models.Device{Name: "late", Type: "relay", PollEnabled: true, PollInterval: 1000, IsActive: true})
	drivers.mu.Lock()
	drivers.byID[id] = &stubDevice{pollFn: constantPoll(1)}
	drivers.mu.Unlock()

	require.NoError(t, p.Reconcile(ctx))
	assert.Equal(t, 1, p.Status().ActiveLoops)
	assert.Equal(t, 1, p.Status().DeviceCount)

	st.readings.mu.Lock()
	require.Len(t, st.readings.cutoffs, 1)
	for _, r := range st.readings.items {
		assert.NotEqual(t, int64(99), r.DeviceID, "expired reading survived cleanup")
	}
	st.readings.mu.Unlock()

	st.devices.update(id, func(d *models.Device) { d.PollEnabled = false })
	require.NoError(t, p.Reconcile(ctx))
	assert.Equal(t, 0, p.Status().ActiveLoops)
	assert.Equal(t, 0, p.Status().DeviceCount)
}

func TestPollScheduler_CancelledPollWritesNothing(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	id, _ := st.devices.Create(ctx, models.Device{Name: "slow", Type: "mqtt", PollEnabled: true, PollInterval: 10, IsActive: true})
	entered := make(chan struct{})
	drivers := &fakeDrivers{byID: map[int64]device.Device{id: &stubDevice{
		pollFn: func(ctx context.Context) (models.Reading, error) {
			close(entered)
			<-ctx.Done()
			return models.Reading{}, ctx.Err()
		},
	}}}

	p := newTestPoller(st, drivers, nil)
	require.NoError(t, p.Start(ctx))

	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatalf("poll was never called")
	}
	require.NoError(t, p.Stop())
	assert.Equal(t, 0, st.devices.statusCount())
	assert.Equal(t, 0, st.readings.count())
}

func TestPollScheduler_Interval(t *testing.T) {
	p := NewPollScheduler(nil, nil, nil, nil, PollerConfig{}, nil, logger.Nop())
	cases := []struct {
		name string
		in   int
		want time.Duration
	}{
		{"default_when_zero", 0, 60 * time.Second},
		{"default_when_negative", -5, 60 * time.Second},
		{"seconds", 15, 15 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.interval(models.Device{PollInterval: tc.in})
			if got != tc.want {
				t.Fatalf("interval(%d) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

// blockingDevices holds ListPollable until release is closed.
type blockingDevices struct {
	*fakeDevices
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDevices) ListPollable(ctx context.Context) ([]models.Device, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.fakeDevices.ListPollable(ctx)
}

func TestPollScheduler_StatusNotBlockedByStartQuery(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	devs := &blockingDevices{fakeDevices: st.devices, entered: make(chan struct{}, 1), release: make(chan struct{})}
	p := NewPollScheduler(devs, st.readings, &fakeDrivers{byID: map[int64]device.Device{}}, nil, PollerConfig{
		ReconcileInterval: time.Hour,
		IntervalUnit:      time.Millisecond,
	}, RealClock(), logger.Nop())

	started := make(chan error, 1)
	go func() { started <- p.Start(ctx) }()
	select {
	case <-devs.entered:
	case <-time.After(waitFor):
		t.Fatalf("Start never queried the store")
	}

	status := make(chan models.PollerStatus, 1)
	go func() { status <- p.Status() }()
	select {
	case got := <-status:
		assert.False(t, got.Running)
	case <-time.After(waitFor):
		t.Fatalf("Status blocked while Start was loading devices")
	}

	close(devs.release)
	require.NoError(t, <-started)
	t.Cleanup(func() { _ = p.Stop() })
	assert.True(t, p.Status().Running)
	assert.ErrorIs(t, p.Start(ctx), ErrPollerRunning)
}
