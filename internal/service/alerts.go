package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"env_automation/internal/logger"
	"env_automation/internal/models"
	"env_automation/internal/notify"
	"env_automation/internal/repository"

	"github.com/google/uuid"
)

// Skip and outcome reasons reported by the alert engine.
const (
	reasonDeviceMissing  = "device not found"
	reasonDeviceInactive = "device inactive"
	reasonNoReading      = "no reading"
	reasonStaleReading   = "stale reading"
	reasonNoMetric       = "metric not found"
	reasonAlreadyActive  = "already active"
	reasonNoAction       = "no action needed"

	trendNotImplemented = "not implemented"
)

// AlertEngine evaluates enabled alerts against the latest readings and keeps
// at most one open event per alert.
type AlertEngine struct {
	alerts    repository.AlertRepo
	events    repository.AlertEventRepo
	devices   repository.DeviceRepo
	readings  repository.ReadingRepo
	cache     ReadingCache
	publisher notify.Publisher
	freshness time.Duration
	clock     Clock
	log       *logger.Logger

	batchMu sync.Mutex
}

// NewAlertEngine builds an engine. cache and publisher may be nil.
func NewAlertEngine(repos *repository.Repository, cache ReadingCache, publisher notify.Publisher,
	freshness time.Duration, clock Clock, log *logger.Logger) *AlertEngine {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if clock == nil {
		clock = RealClock()
	}
	if freshness <= 0 {
		freshness = 5 * time.Minute
	}
	return &AlertEngine{
		alerts:    repos.Alerts,
		events:    repos.AlertEvents,
		devices:   repos.Devices,
		readings:  repos.Readings,
		cache:     cache,
		publisher: publisher,
		freshness: freshness,
		clock:     clock,
		log:       log.Named("alerts"),
	}
}

// EvaluateAll evaluates every enabled alert. A failing alert is counted in
// Errors and does not stop the batch; only failing to list alerts is returned.
// Batches never overlap: a second caller waits for the running one.
func (e *AlertEngine) EvaluateAll(ctx context.Context) (models.EvaluationStats, error) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()

	var stats models.EvaluationStats
	alerts, err := e.alerts.ListEnabled(ctx)
	if err != nil {
		return stats, fmt.Errorf("load enabled alerts: %w", err)
	}
	stats.Total = len(alerts)

	for _, a := range alerts {
		out, err := e.evaluateGuarded(ctx, a)
		if err != nil {
			stats.Errors++
			e.log.Errorw("alert_evaluation_failed", "alert_id", a.ID, "error", err)
			continue
		}
		if out.Skipped {
			stats.Skipped++
		} else {
			stats.Evaluated++
		}
		if out.Triggered {
			stats.Triggered++
		}
		if out.Resolved {
			stats.Resolved++
		}
	}

	if stats.Triggered > 0 || stats.Resolved > 0 || stats.Errors > 0 {
		e.log.Infow("alerts_evaluated", "total", stats.Total, "triggered", stats.Triggered,
			"resolved", stats.Resolved, "skipped", stats.Skipped, "errors", stats.Errors)
	}
	return stats, nil
}

func (e *AlertEngine) evaluateGuarded(ctx context.Context, a models.Alert) (out models.EvaluationOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate alert %d panicked: %v", a.ID, r)
		}
	}()
	return e.EvaluateOne(ctx, a)
}

// EvaluateOne runs the evaluation pipeline for a single alert. Unmet
// preconditions are reported as skipped outcomes, not errors.
func (e *AlertEngine) EvaluateOne(ctx context.Context, a models.Alert) (models.EvaluationOutcome, error) {
	out := models.EvaluationOutcome{AlertID: a.ID}
	if a.TrendEnabled {
		out.Trend = trendNotImplemented
	}

	dev, err := e.devices.GetByID(ctx, a.DeviceID)
	if err != nil {
		return out, fmt.Errorf("load device %d: %w", a.DeviceID, err)
	}
	if dev == nil {
		return e.skip(out, reasonDeviceMissing), nil
	}
	if !dev.IsActive {
		return e.skip(out, reasonDeviceInactive), nil
	}

	rd, err := e.latestReading(ctx, dev.ID)
	if err != nil {
		return out, err
	}
	if rd == nil {
		return e.skip(out, reasonNoReading), nil
	}
	now := e.clock.Now().UTC()
	// Push-fed devices are exempt: their readings arrive at the sender's pace.
	if dev.PollEnabled && now.Sub(rd.Timestamp) > e.freshness {
		return e.skip(out, reasonStaleReading), nil
	}

	value, ok := ExtractMetric(*rd, a.Metric)
	if !ok {
		return e.skip(out, reasonNoMetric), nil
	}
	out.Value = &value

	cond, known := Compare(a.Operator, value, a.Threshold)
	if !known {
		e.log.Warnw("unknown_operator", "alert_id", a.ID, "operator", a.Operator)
	}
	out.Evaluated = true

	open, err := e.events.GetUnresolved(ctx, a.ID)
	if err != nil {
		return out, fmt.Errorf("load open event of alert %d: %w", a.ID, err)
	}

	switch {
	case cond && open == nil:
		ev := models.AlertEvent{
			ID:             uuid.NewString(),
			AlertID:        a.ID,
			DeviceID:       a.DeviceID,
			TriggeredAt:    now,
			CurrentValue:   value,
			ThresholdValue: a.Threshold,
			Operator:       a.Operator,
			Metric:         a.Metric,
		}
		if err := e.events.Create(ctx, ev); err != nil {
			return out, fmt.Errorf("create event for alert %d: %w", a.ID, err)
		}
		out.Triggered = true
		out.EventID = ev.ID
		e.log.Infow("alert_triggered", "alert_id", a.ID, "device_id", a.DeviceID, "value", value, "threshold", a.Threshold)
		e.notify(ctx, notify.AlertTriggered, ev)

	case cond:
		out.Skipped = true
		out.Reason = reasonAlreadyActive
		out.EventID = open.ID

	case open != nil:
		if err := e.events.Resolve(ctx, open.ID, now, value); err != nil {
			return out, fmt.Errorf("resolve event %s of alert %d: %w", open.ID, a.ID, err)
		}
		out.Resolved = true
		out.EventID = open.ID
		resolved := *open
		resolved.Resolved = true
		resolved.ResolvedAt = &now
		resolved.ResolutionValue = &value
		e.log.Infow("alert_resolved", "alert_id", a.ID, "device_id", a.DeviceID, "value", value)
		e.notify(ctx, notify.AlertResolved, resolved)

	default:
		out.Reason = reasonNoAction
	}
	return out, nil
}

func (e *AlertEngine) skip(out models.EvaluationOutcome, reason string) models.EvaluationOutcome {
	out.Skipped = true
	out.Reason = reason
	e.log.Debugw("alert_skipped", "alert_id", out.AlertID, "reason", reason)
	return out
}

// latestReading reads through the cache; a cache failure falls back to the Store.
func (e *AlertEngine) latestReading(ctx context.Context, deviceID int64) (*models.Reading, error) {
	if e.cache != nil {
		rd, err := e.cache.Latest(ctx, deviceID)
		if err != nil {
			e.log.Warnw("cache_get_failed", "device_id", deviceID, "error", err)
		} else if rd != nil {
			return rd, nil
		}
	}
	rd, err := e.readings.Latest(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("load latest reading of device %d: %w", deviceID, err)
	}
	return rd, nil
}

func (e *AlertEngine) notify(ctx context.Context, event string, data any) {
	if err := e.publisher.Publish(ctx, event, data); err != nil {
		e.log.Warnw("notify_failed", "event", event, "error", err)
	}
}
