package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"env_automation/internal/device"
	"env_automation/internal/models"
	"env_automation/internal/repository"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// ---- Clock ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// ---- Devices ----

type pollStatus struct {
	id        int64
	at        time.Time
	lastError string
}

type fakeDevices struct {
	mu     sync.Mutex
	items  map[int64]models.Device
	nextID int64
	polls  []pollStatus
	getErr error
}

func (f *fakeDevices) Create(ctx context.Context, d models.Device) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d.ID = f.nextID
	f.items[d.ID] = d
	return d.ID, nil
}

func (f *fakeDevices) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (f *fakeDevices) List(ctx context.Context, flt repository.DeviceFilter) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Device
	for _, d := range f.items {
		if flt.Type != "" && d.Type != flt.Type {
			continue
		}
		if flt.IsActive != nil && d.IsActive != *flt.IsActive {
			continue
		}
		if flt.PollEnabled != nil && d.PollEnabled != *flt.PollEnabled {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDevices) ListPollable(ctx context.Context) ([]models.Device, error) {
	all, _ := f.List(ctx, repository.DeviceFilter{})
	var out []models.Device
	for _, d := range all {
		if d.Pollable() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDevices) UpdatePollStatus(ctx context.Context, id int64, at time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.LastPolled = &at
	d.LastError = lastError
	f.items[id] = d
	f.polls = append(f.polls, pollStatus{id: id, at: at, lastError: lastError})
	return nil
}

func (f *fakeDevices) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeDevices) update(id int64, fn func(d *models.Device)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.items[id]
	fn(&d)
	f.items[id] = d
}

func (f *fakeDevices) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polls)
}

// ---- Readings ----

type fakeReadings struct {
	mu        sync.Mutex
	items     []models.Reading
	appendErr error
	cutoffs   []time.Time
}

func (f *fakeReadings) Append(ctx context.Context, r models.Reading) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	r.ID = int64(len(f.items) + 1)
	f.items = append(f.items, r)
	return r.ID, nil
}

func (f *fakeReadings) Latest(ctx context.Context, deviceID int64) (*models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Reading
	for i := range f.items {
		r := f.items[i]
		if r.DeviceID != deviceID {
			continue
		}
		if best == nil || !r.Timestamp.Before(best.Timestamp) {
			best = &r
		}
	}
	return best, nil
}

func (f *fakeReadings) List(ctx context.Context, deviceID int64, from, to time.Time, limit int) ([]models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reading
	for _, r := range f.items {
		if r.DeviceID != deviceID {
			continue
		}
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReadings) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	kept := f.items[:0]
	var n int64
	for _, r := range f.items {
		if r.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.items = kept
	return n, nil
}

func (f *fakeReadings) add(r models.Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, r)
}

func (f *fakeReadings) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// ---- Alerts ----

type fakeAlerts struct {
	items   map[int64]models.Alert
	nextID  int64
	listErr error
}

func (f *fakeAlerts) Create(ctx context.Context, a models.Alert) (int64, error) {
	f.nextID++
	a.ID = f.nextID
	f.items[a.ID] = a
	return a.ID, nil
}

func (f *fakeAlerts) GetByID(ctx context.Context, id int64) (*models.Alert, error) {
	a, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeAlerts) ListEnabled(ctx context.Context) ([]models.Alert, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Alert
	for _, a := range f.items {
		if a.Enabled {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAlerts) ListByDevice(ctx context.Context, deviceID int64) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range f.items {
		if a.DeviceID == deviceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	a, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Enabled = enabled
	f.items[id] = a
	return nil
}

func (f *fakeAlerts) Delete(ctx context.Context, id int64) error {
	delete(f.items, id)
	return nil
}

func (f *fakeAlerts) Count(ctx context.Context) (models.AlertCounts, error) {
	var c models.AlertCounts
	for _, a := range f.items {
		c.Total++
		if a.Enabled {
			c.Enabled++
		}
	}
	return c, nil
}

// ---- Alert events ----

var errOpenEventExists = errors.New("unresolved event already exists")

type fakeEvents struct {
	items []models.AlertEvent
}

func (f *fakeEvents) Create(ctx context.Context, e models.AlertEvent) error {
	for _, ex := range f.items {
		if ex.AlertID == e.AlertID && !ex.Resolved {
			return errOpenEventExists
		}
	}
	f.items = append(f.items, e)
	return nil
}

func (f *fakeEvents) GetUnresolved(ctx context.Context, alertID int64) (*models.AlertEvent, error) {
	for i := range f.items {
		if f.items[i].AlertID == alertID && !f.items[i].Resolved {
			e := f.items[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeEvents) Resolve(ctx context.Context, id string, at time.Time, value float64) error {
	for i := range f.items {
		if f.items[i].ID == id && !f.items[i].Resolved {
			f.items[i].Resolved = true
			f.items[i].ResolvedAt = &at
			f.items[i].ResolutionValue = &value
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeEvents) List(ctx context.Context, flt repository.AlertEventFilter) ([]models.AlertEvent, error) {
	var out []models.AlertEvent
	for _, e := range f.items {
		if flt.AlertID != nil && e.AlertID != *flt.AlertID {
			continue
		}
		if flt.Resolved != nil && e.Resolved != *flt.Resolved {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEvents) CountUnresolved(ctx context.Context) (int, error) {
	n := 0
	for _, e := range f.items {
		if !e.Resolved {
			n++
		}
	}
	return n, nil
}

// ---- Schedules ----

type fakeSchedules struct {
	items     map[int64]models.Schedule
	nextID    int64
	updateErr map[int64]error
}

func (f *fakeSchedules) Create(ctx context.Context, s models.Schedule) (int64, error) {
	f.nextID++
	s.ID = f.nextID
	f.items[s.ID] = s
	return s.ID, nil
}

func (f *fakeSchedules) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	s, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeSchedules) List(ctx context.Context, enabledOnly bool) ([]models.Schedule, error) {
	var out []models.Schedule
	for _, s := range f.items {
		if enabledOnly && !s.Enabled {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSchedules) ListDue(ctx context.Context, now time.Time) ([]models.Schedule, error) {
	all, _ := f.List(ctx, true)
	var out []models.Schedule
	for _, s := range all {
		if s.NextRun != nil && !s.NextRun.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSchedules) UpdateRunState(ctx context.Context, id int64, st repository.RunState) error {
	if err := f.updateErr[id]; err != nil {
		return err
	}
	s, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	last := st.LastRun
	s.LastRun = &last
	s.LastRunStatus = st.LastRunStatus
	s.NextRun = st.NextRun
	s.Enabled = st.Enabled
	f.items[id] = s
	return nil
}

func (f *fakeSchedules) Delete(ctx context.Context, id int64) error {
	delete(f.items, id)
	return nil
}

func (f *fakeSchedules) Count(ctx context.Context) (models.ScheduleCounts, error) {
	var c models.ScheduleCounts
	for _, s := range f.items {
		c.Total++
		if s.Enabled {
			c.Enabled++
		}
	}
	return c, nil
}

// ---- Actions ----

type fakeActions struct {
	items    []models.DeviceAction
	createFn func(a models.DeviceAction) error
}

func (f *fakeActions) Create(ctx context.Context, a models.DeviceAction) (string, error) {
	if f.createFn != nil {
		if err := f.createFn(a); err != nil {
			return "", err
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.ActionPending
	}
	f.items = append(f.items, a)
	return a.ID, nil
}

func (f *fakeActions) GetByID(ctx context.Context, id string) (*models.DeviceAction, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			a := f.items[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (f *fakeActions) ListPendingDue(ctx context.Context, now time.Time) ([]models.DeviceAction, error) {
	var out []models.DeviceAction
	for _, a := range f.items {
		if a.Status == models.ActionPending && !a.ScheduledTime.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActions) List(ctx context.Context, flt repository.ActionFilter) ([]models.DeviceAction, error) {
	var out []models.DeviceAction
	for _, a := range f.items {
		if flt.DeviceID != 0 && a.DeviceID != flt.DeviceID {
			continue
		}
		if flt.Status != "" && a.Status != flt.Status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeActions) Complete(ctx context.Context, id string, c repository.Completion) error {
	for i := range f.items {
		if f.items[i].ID != id {
			continue
		}
		if f.items[i].Status != models.ActionPending {
			return repository.ErrActionNotPending
		}
		at := c.ExecutedTime
		f.items[i].Status = c.Status
		f.items[i].ExecutedTime = &at
		f.items[i].Result = c.Result
		f.items[i].ErrorMessage = c.ErrorMessage
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeActions) CountByStatus(ctx context.Context) (map[models.ActionStatus]int, error) {
	out := map[models.ActionStatus]int{}
	for _, a := range f.items {
		out[a.Status]++
	}
	return out, nil
}

// ---- Aggregate ----

type fakeStore struct {
	devices   *fakeDevices
	readings  *fakeReadings
	alerts    *fakeAlerts
	events    *fakeEvents
	schedules *fakeSchedules
	actions   *fakeActions
}

func newFakeRepos() (*repository.Repository, *fakeStore) {
	st := &fakeStore{
		devices:   &fakeDevices{items: map[int64]models.Device{}},
		readings:  &fakeReadings{},
		alerts:    &fakeAlerts{items: map[int64]models.Alert{}},
		events:    &fakeEvents{},
		schedules: &fakeSchedules{items: map[int64]models.Schedule{}, updateErr: map[int64]error{}},
		actions:   &fakeActions{},
	}
	return &repository.Repository{
		Devices:     st.devices,
		Readings:    st.readings,
		Alerts:      st.alerts,
		AlertEvents: st.events,
		Schedules:   st.schedules,
		Actions:     st.actions,
	}, st
}

// ---- Drivers ----

type stubDevice struct {
	mu        sync.Mutex
	pollFn    func(ctx context.Context) (models.Reading, error)
	actuateFn func(ctx context.Context, a device.Action) (device.Outcome, error)
	actions   []device.Action
}

func (d *stubDevice) Poll(ctx context.Context) (models.Reading, error) {
	if d.pollFn == nil {
		return models.Reading{}, device.Fail(device.CodeNoData, "no poll configured")
	}
	return d.pollFn(ctx)
}

func (d *stubDevice) Actuate(ctx context.Context, a device.Action) (device.Outcome, error) {
	d.mu.Lock()
	d.actions = append(d.actions, a)
	d.mu.Unlock()
	if d.actuateFn == nil {
		return device.Outcome{"ok": true}, nil
	}
	return d.actuateFn(ctx, a)
}

func (d *stubDevice) TestConnection(ctx context.Context) error { return nil }

type fakeDrivers struct {
	mu   sync.Mutex
	byID map[int64]device.Device
}

func (f *fakeDrivers) Resolve(d models.Device) (device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	drv, ok := f.byID[d.ID]
	if !ok {
		return nil, device.ErrUnknownType
	}
	return drv, nil
}

// ---- Publisher ----

type published struct {
	event string
	data  any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, event string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{event: event, data: data})
	return p.err
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, s := range p.sent {
		out = append(out, s.event)
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
