package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"env_automation/internal/device"
	"env_automation/internal/logger"
	"env_automation/internal/models"
	"env_automation/internal/notify"
	"env_automation/internal/repository"
)

// Validation errors wrapped by the job scheduler.
var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidAction   = errors.New("invalid action")
)

// ScheduleRequest is the input for creating a schedule.
type ScheduleRequest struct {
	Name            string              `json:"name"`
	Kind            models.ScheduleKind `json:"kind"`
	StartTime       *time.Time          `json:"start_time,omitempty"`
	EndTime         *time.Time          `json:"end_time,omitempty"`
	IntervalSeconds int                 `json:"interval_seconds,omitempty"`
	CronExpression  string              `json:"cron_expression,omitempty"`
	Frequency       string              `json:"frequency,omitempty"`
	Timezone        string              `json:"timezone,omitempty"`
	Enabled         *bool               `json:"enabled,omitempty"` // defaults to true
	ActionType      string              `json:"action_type"`
	ActionParams    map[string]any      `json:"action_params,omitempty"`
	DeviceIDs       []int64             `json:"device_ids"`
}

// ManualActionRequest is the input for a caller-created action.
type ManualActionRequest struct {
	DeviceID      int64          `json:"device_id"`
	ActionType    string         `json:"action_type"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	ScheduledTime *time.Time     `json:"scheduled_time,omitempty"` // defaults to now
}

// JobScheduler turns due schedules into device actions and dispatches
// pending actions to their devices.
type JobScheduler struct {
	schedules repository.ScheduleRepo
	actions   repository.ActionRepo
	devices   repository.DeviceRepo
	drivers   DriverResolver
	publisher notify.Publisher
	clock     Clock
	log       *logger.Logger

	// Each batch runs single-flight across the periodic tick and manual triggers.
	dueMu      sync.Mutex
	dispatchMu sync.Mutex
}

// NewJobScheduler builds a scheduler. publisher may be nil.
func NewJobScheduler(repos *repository.Repository, drivers DriverResolver, publisher notify.Publisher,
	clock Clock, log *logger.Logger) *JobScheduler {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if clock == nil {
		clock = RealClock()
	}
	return &JobScheduler{
		schedules: repos.Schedules,
		actions:   repos.Actions,
		devices:   repos.Devices,
		drivers:   drivers,
		publisher: publisher,
		clock:     clock,
		log:       log.Named("jobs"),
	}
}

// CreateSchedule validates req, computes the first run and stores the schedule.
// A schedule without a next run is stored disabled.
func (j *JobScheduler) CreateSchedule(ctx context.Context, req ScheduleRequest) (models.Schedule, error) {
	s := models.Schedule{
		Name:            strings.TrimSpace(req.Name),
		Kind:            models.ScheduleKind(strings.ToUpper(strings.TrimSpace(string(req.Kind)))),
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		IntervalSeconds: req.IntervalSeconds,
		CronExpression:  strings.TrimSpace(req.CronExpression),
		Frequency:       strings.ToLower(strings.TrimSpace(req.Frequency)),
		Timezone:        strings.TrimSpace(req.Timezone),
		Enabled:         req.Enabled == nil || *req.Enabled,
		ActionType:      strings.TrimSpace(req.ActionType),
		ActionParams:    req.ActionParams,
		DeviceIDs:       dedupeIDs(req.DeviceIDs),
		CreatedAt:       j.clock.Now().UTC(),
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if err := validateSchedule(s); err != nil {
		return models.Schedule{}, err
	}

	s.NextRun = j.NextRun(s, s.CreatedAt)
	if s.NextRun == nil {
		s.Enabled = false
	}

	id, err := j.schedules.Create(ctx, s)
	if err != nil {
		return models.Schedule{}, err
	}
	s.ID = id
	j.log.Infow("schedule_created", "schedule_id", id, "kind", s.Kind, "next_run", s.NextRun, "enabled", s.Enabled)
	return s, nil
}

func validateSchedule(s models.Schedule) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidSchedule, fmt.Sprintf(format, args...))
	}
	switch {
	case s.Name == "":
		return invalid("name is required")
	case s.ActionType == "":
		return invalid("action_type is required")
	case len(s.DeviceIDs) == 0:
		return invalid("at least one device is required")
	case s.StartTime != nil && s.EndTime != nil && s.EndTime.Before(*s.StartTime):
		return invalid("end_time is before start_time")
	}

	switch s.Kind {
	case models.KindOneOff, models.KindStatic:
		if s.StartTime == nil {
			return invalid("%s requires start_time", s.Kind)
		}
	case models.KindInterval:
		if s.IntervalSeconds <= 0 {
			return invalid("interval_seconds must be positive")
		}
	case models.KindCron:
		if _, ok := parseCron(s.CronExpression); !ok {
			return invalid("malformed cron expression %q", s.CronExpression)
		}
	case models.KindRecurring:
		if _, ok := recurrenceStep[s.Frequency]; !ok {
			return invalid("frequency must be daily, weekly or monthly")
		}
		if s.StartTime == nil {
			return invalid("RECURRING requires start_time")
		}
	default:
		return invalid("unknown kind %q", s.Kind)
	}
	return nil
}

// CreateManualAction stores a pending action that belongs to no schedule.
func (j *JobScheduler) CreateManualAction(ctx context.Context, req ManualActionRequest) (models.DeviceAction, error) {
	actionType := strings.TrimSpace(req.ActionType)
	if actionType == "" {
		return models.DeviceAction{}, fmt.Errorf("%w: action_type is required", ErrInvalidAction)
	}
	d, err := j.devices.GetByID(ctx, req.DeviceID)
	if err != nil {
		return models.DeviceAction{}, err
	}
	if d == nil {
		return models.DeviceAction{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, req.DeviceID)
	}

	now := j.clock.Now().UTC()
	a := models.DeviceAction{
		DeviceID:      req.DeviceID,
		ActionType:    actionType,
		Parameters:    req.Parameters,
		Status:        models.ActionPending,
		ScheduledTime: now,
		CreatedAt:     now,
	}
	if req.ScheduledTime != nil {
		a.ScheduledTime = req.ScheduledTime.UTC()
	}
	if a.ID, err = j.actions.Create(ctx, a); err != nil {
		return models.DeviceAction{}, err
	}
	return a, nil
}

// RunOnce processes due schedules and then dispatches pending actions.
func (j *JobScheduler) RunOnce(ctx context.Context) error {
	if _, err := j.ProcessDueSchedules(ctx); err != nil {
		return err
	}
	_, err := j.DispatchPending(ctx)
	return err
}

// ProcessDueSchedules fans every due schedule out into one pending action per
// bound device and advances or retires the schedule. Concurrent calls wait
// for the running pass, so a schedule is never fanned out twice.
func (j *JobScheduler) ProcessDueSchedules(ctx context.Context) (models.ScheduleRunStats, error) {
	j.dueMu.Lock()
	defer j.dueMu.Unlock()

	var stats models.ScheduleRunStats
	now := j.clock.Now().UTC()

	due, err := j.schedules.ListDue(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("load due schedules: %w", err)
	}
	stats.Due = len(due)

	for _, s := range due {
		if !s.Enabled || len(s.DeviceIDs) == 0 {
			stats.Skipped++
			j.log.Debugw("schedule_skipped", "schedule_id", s.ID, "enabled", s.Enabled, "devices", len(s.DeviceIDs))
			continue
		}
		created, failed, retired, err := j.processSchedule(ctx, s, now)
		stats.ActionsCreated += created
		stats.Errors += failed
		if err != nil {
			stats.Errors++
			j.log.Errorw("schedule_processing_failed", "schedule_id", s.ID, "error", err)
			continue
		}
		stats.Processed++
		if retired {
			stats.Disabled++
		}
		if created == 0 {
			j.log.Warnw("schedule_created_no_actions", "schedule_id", s.ID)
		}
	}

	if stats.Due > 0 {
		j.log.Infow("schedules_processed", "due", stats.Due, "processed", stats.Processed,
			"actions", stats.ActionsCreated, "disabled", stats.Disabled, "errors", stats.Errors)
	}
	return stats, nil
}

// processSchedule returns the number of actions created and of per-device
// failures, and whether the schedule was retired.
func (j *JobScheduler) processSchedule(ctx context.Context, s models.Schedule, now time.Time) (created, failed int, retired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedule %d panicked: %v", s.ID, r)
		}
	}()

	scheduleID := s.ID
	for _, deviceID := range s.DeviceIDs {
		a := models.DeviceAction{
			ScheduleID:    &scheduleID,
			DeviceID:      deviceID,
			ActionType:    s.ActionType,
			Parameters:    copyParams(s.ActionParams),
			Status:        models.ActionPending,
			ScheduledTime: now,
			CreatedAt:     now,
		}
		if _, err := j.createAction(ctx, a); err != nil {
			failed++
			j.log.Errorw("action_create_failed", "schedule_id", s.ID, "device_id", deviceID, "error", err)
			continue
		}
		created++
	}

	s.LastRun = &now
	next := j.NextRun(s, now)
	st := repository.RunState{
		LastRun:       now,
		LastRunStatus: models.RunStatusSuccess,
		NextRun:       next,
		Enabled:       next != nil,
	}
	if err := j.schedules.UpdateRunState(ctx, s.ID, st); err != nil {
		return created, failed, false, fmt.Errorf("update run state: %w", err)
	}
	if next == nil {
		j.log.Infow("schedule_disabled", "schedule_id", s.ID, "reason", "no next run")
	}
	return created, failed, next == nil, nil
}

// createAction isolates a panicking repository call to one device.
func (j *JobScheduler) createAction(ctx context.Context, a models.DeviceAction) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("create action panicked: %v", r)
		}
	}()
	return j.actions.Create(ctx, a)
}

// DispatchPending actuates every pending action that is due. Device failures
// complete the action as failed; there is no retry. Concurrent calls wait for
// the running pass, so each action is actuated at most once.
func (j *JobScheduler) DispatchPending(ctx context.Context) (models.DispatchStats, error) {
	j.dispatchMu.Lock()
	defer j.dispatchMu.Unlock()

	var stats models.DispatchStats
	actions, err := j.actions.ListPendingDue(ctx, j.clock.Now().UTC())
	if err != nil {
		return stats, fmt.Errorf("load pending actions: %w", err)
	}
	for _, a := range actions {
		stats.Total++
		status, err := j.dispatch(ctx, a)
		switch {
		case err != nil:
			stats.Errors++
			j.log.Errorw("action_dispatch_failed", "action_id", a.ID, "device_id", a.DeviceID, "error", err)
		case status == models.ActionSuccess:
			stats.Succeeded++
		default:
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		j.log.Infow("actions_dispatched", "total", stats.Total, "succeeded", stats.Succeeded,
			"failed", stats.Failed, "errors", stats.Errors)
	}
	return stats, nil
}

func (j *JobScheduler) dispatch(ctx context.Context, a models.DeviceAction) (models.ActionStatus, error) {
	d, err := j.devices.GetByID(ctx, a.DeviceID)
	if err != nil {
		return "", fmt.Errorf("load device %d: %w", a.DeviceID, err)
	}

	var (
		outcome device.Outcome
		actErr  error
	)
	switch {
	case d == nil:
		actErr = fmt.Errorf("device %d not found", a.DeviceID)
	case !d.IsActive:
		actErr = fmt.Errorf("device %d is inactive", a.DeviceID)
	default:
		drv, err := j.drivers.Resolve(*d)
		if err != nil {
			actErr = err
		} else {
			outcome, actErr = device.SafeActuate(ctx, drv, device.Action{Type: a.ActionType, Parameters: a.Parameters})
		}
	}

	c := repository.Completion{ExecutedTime: j.clock.Now().UTC()}
	if actErr != nil {
		c.Status = models.ActionFailed
		c.ErrorMessage = actErr.Error()
		j.log.Warnw("action_failed", "action_id", a.ID, "device_id", a.DeviceID, "error", actErr)
	} else {
		c.Status = models.ActionSuccess
		c.Result = outcome
	}
	if err := j.actions.Complete(ctx, a.ID, c); err != nil {
		return "", fmt.Errorf("complete action %s: %w", a.ID, err)
	}

	a.Status = c.Status
	a.ExecutedTime = &c.ExecutedTime
	a.Result = c.Result
	a.ErrorMessage = c.ErrorMessage
	if err := j.publisher.Publish(ctx, notify.ActionCompleted, a); err != nil {
		j.log.Warnw("notify_failed", "event", notify.ActionCompleted, "error", err)
	}
	return c.Status, nil
}

func copyParams(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
