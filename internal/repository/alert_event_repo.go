package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"env_automation/internal/models"

	"github.com/google/uuid"
)

// AlertEventSQLite stores trigger/resolve edges. The schema allows one unresolved row per alert.
type AlertEventSQLite struct {
	db *sql.DB
}

func NewAlertEventSQLite(db *sql.DB) *AlertEventSQLite { return &AlertEventSQLite{db: db} }

var _ AlertEventRepo = (*AlertEventSQLite)(nil)

const (
	alertEventColumns = `id, alert_id, device_id, triggered_at, current_value, threshold_value, operator, metric, resolved, resolved_at, resolution_value`

	insertAlertEventSQL = `INSERT INTO alert_events (id, alert_id, device_id, triggered_at, current_value, threshold_value, operator, metric, resolved) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`

	selectUnresolvedEventSQL = `SELECT ` + alertEventColumns + ` FROM alert_events WHERE alert_id = ? AND resolved = 0 LIMIT 1`

	resolveAlertEventSQL = `UPDATE alert_events SET resolved = 1, resolved_at = ?, resolution_value = ? WHERE id = ? AND resolved = 0`

	countUnresolvedEventsSQL = `SELECT COUNT(*) FROM alert_events WHERE resolved = 0`

	defaultEventLimit = 200
)

// Create inserts an unresolved event. An empty ID is generated; a zero TriggeredAt is set to now.
func (r *AlertEventSQLite) Create(ctx context.Context, e models.AlertEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TriggeredAt.IsZero() {
		e.TriggeredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, insertAlertEventSQL,
		e.ID, e.AlertID, e.DeviceID, formatTS(e.TriggeredAt), e.CurrentValue, e.ThresholdValue,
		string(e.Operator), e.Metric)
	if err != nil {
		return fmt.Errorf("insert event for alert %d: %w", e.AlertID, err)
	}
	return nil
}

// GetUnresolved returns the open event of an alert, or (nil, nil) when none is open.
func (r *AlertEventSQLite) GetUnresolved(ctx context.Context, alertID int64) (*models.AlertEvent, error) {
	e, err := scanAlertEvent(r.db.QueryRowContext(ctx, selectUnresolvedEventSQL, alertID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select unresolved event of alert %d: %w", alertID, err)
	}
	return &e, nil
}

// Resolve closes an open event. Resolving an already resolved event returns ErrNotFound.
func (r *AlertEventSQLite) Resolve(ctx context.Context, id string, at time.Time, value float64) error {
	res, err := r.db.ExecContext(ctx, resolveAlertEventSQL, formatTS(at), value, id)
	if err != nil {
		return fmt.Errorf("resolve alert event %s: %w", id, err)
	}
	return expectAffected(res, "unresolved alert event "+id)
}

// List returns events matching f, newest first.
func (r *AlertEventSQLite) List(ctx context.Context, f AlertEventFilter) ([]models.AlertEvent, error) {
	var (
		conds []string
		args  []any
	)
	if f.AlertID != nil {
		conds = append(conds, "alert_id = ?")
		args = append(args, *f.AlertID)
	}
	if f.DeviceID != nil {
		conds = append(conds, "device_id = ?")
		args = append(args, *f.DeviceID)
	}
	if f.Resolved != nil {
		conds = append(conds, "resolved = ?")
		args = append(args, *f.Resolved)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	q := `SELECT ` + alertEventColumns + ` FROM alert_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY triggered_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert events: %w", err)
	}
	defer rows.Close()

	var out []models.AlertEvent
	for rows.Next() {
		e, err := scanAlertEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AlertEventSQLite) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countUnresolvedEventsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unresolved alert events: %w", err)
	}
	return n, nil
}

func scanAlertEvent(row rowScanner) (models.AlertEvent, error) {
	var (
		e           models.AlertEvent
		triggeredAt string
		op          string
		resolvedAt  sql.NullString
		resolution  sql.NullFloat64
	)
	if err := row.Scan(&e.ID, &e.AlertID, &e.DeviceID, &triggeredAt, &e.CurrentValue, &e.ThresholdValue,
		&op, &e.Metric, &e.Resolved, &resolvedAt, &resolution); err != nil {
		return models.AlertEvent{}, err
	}
	var err error
	if e.TriggeredAt, err = parseTS(triggeredAt); err != nil {
		return models.AlertEvent{}, err
	}
	if e.ResolvedAt, err = parseNullTS(resolvedAt); err != nil {
		return models.AlertEvent{}, err
	}
	e.Operator = models.Operator(op)
	e.ResolutionValue = floatPtr(resolution)
	return e, nil
}
