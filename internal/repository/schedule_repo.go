package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"env_automation/internal/models"
)

type ScheduleSQLite struct {
	db *sql.DB
}

func NewScheduleSQLite(db *sql.DB) *ScheduleSQLite { return &ScheduleSQLite{db: db} }

var _ ScheduleRepo = (*ScheduleSQLite)(nil)

const (
	scheduleColumns = `id, name, kind, start_time, end_time, interval_seconds, cron_expression, frequency, timezone, enabled, next_run, last_run, last_run_status, action_type, action_params, device_ids, created_at`

	insertScheduleSQL = `INSERT INTO schedules (name, kind, start_time, end_time, interval_seconds, cron_expression, frequency, timezone, enabled, next_run, action_type, action_params, device_ids, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectScheduleByIDSQL = `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`

	selectAllSchedulesSQL = `SELECT ` + scheduleColumns + ` FROM schedules ORDER BY id ASC`

	selectEnabledSchedulesSQL = `SELECT ` + scheduleColumns + ` FROM schedules WHERE enabled = 1 ORDER BY id ASC`

	selectDueSchedulesSQL = `SELECT ` + scheduleColumns + ` FROM schedules WHERE enabled = 1 AND next_run IS NOT NULL AND next_run <= ? ORDER BY next_run ASC, id ASC`

	updateRunStateSQL = `UPDATE schedules SET last_run = ?, last_run_status = ?, next_run = ?, enabled = ? WHERE id = ?`

	deleteScheduleSQL = `DELETE FROM schedules WHERE id = ?`

	countSchedulesSQL = `SELECT COUNT(*), COALESCE(SUM(CASE WHEN enabled = 1 THEN 1 ELSE 0 END), 0) FROM schedules`
)

// Create inserts a schedule with its precomputed NextRun and returns its ID.
func (r *ScheduleSQLite) Create(ctx context.Context, s models.Schedule) (int64, error) {
	params, err := marshalMap(s.ActionParams)
	if err != nil {
		return 0, err
	}
	ids := s.DeviceIDs
	if ids == nil {
		ids = []int64{}
	}
	devices, err := json.Marshal(ids)
	if err != nil {
		return 0, fmt.Errorf("encode device ids: %w", err)
	}
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, insertScheduleSQL,
		s.Name, string(s.Kind), formatNullTS(s.StartTime), formatNullTS(s.EndTime), s.IntervalSeconds,
		s.CronExpression, s.Frequency, tz, s.Enabled, formatNullTS(s.NextRun),
		s.ActionType, params, string(devices), formatTS(created))
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("insert schedule %q: %w", s.Name, ErrScheduleNameTaken)
	}
	if err != nil {
		return 0, fmt.Errorf("insert schedule %q: %w", s.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for schedule %q: %w", s.Name, err)
	}
	return id, nil
}

// GetByID fetches a schedule. Returns (nil, nil) if not found.
func (r *ScheduleSQLite) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, selectScheduleByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select schedule %d: %w", id, err)
	}
	return &s, nil
}

func (r *ScheduleSQLite) List(ctx context.Context, enabledOnly bool) ([]models.Schedule, error) {
	if enabledOnly {
		return r.query(ctx, selectEnabledSchedulesSQL)
	}
	return r.query(ctx, selectAllSchedulesSQL)
}

// ListDue returns enabled schedules whose next_run is at or before now, oldest first.
func (r *ScheduleSQLite) ListDue(ctx context.Context, now time.Time) ([]models.Schedule, error) {
	return r.query(ctx, selectDueSchedulesSQL, formatTS(now))
}

func (r *ScheduleSQLite) UpdateRunState(ctx context.Context, id int64, st RunState) error {
	res, err := r.db.ExecContext(ctx, updateRunStateSQL,
		formatTS(st.LastRun), st.LastRunStatus, formatNullTS(st.NextRun), st.Enabled, id)
	if err != nil {
		return fmt.Errorf("update run state of schedule %d: %w", id, err)
	}
	return expectAffected(res, fmt.Sprintf("schedule %d", id))
}

func (r *ScheduleSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteScheduleSQL, id)
	if err != nil {
		return fmt.Errorf("delete schedule %d: %w", id, err)
	}
	return expectAffected(res, fmt.Sprintf("schedule %d", id))
}

func (r *ScheduleSQLite) Count(ctx context.Context) (models.ScheduleCounts, error) {
	var c models.ScheduleCounts
	if err := r.db.QueryRowContext(ctx, countSchedulesSQL).Scan(&c.Total, &c.Enabled); err != nil {
		return models.ScheduleCounts{}, fmt.Errorf("count schedules: %w", err)
	}
	return c, nil
}

func (r *ScheduleSQLite) query(ctx context.Context, q string, args ...any) ([]models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSchedule(row rowScanner) (models.Schedule, error) {
	var (
		s                  models.Schedule
		kind               string
		start, end         sql.NullString
		nextRun, lastRun   sql.NullString
		params             sql.NullString
		devices, createdAt string
	)
	if err := row.Scan(&s.ID, &s.Name, &kind, &start, &end, &s.IntervalSeconds, &s.CronExpression,
		&s.Frequency, &s.Timezone, &s.Enabled, &nextRun, &lastRun, &s.LastRunStatus,
		&s.ActionType, &params, &devices, &createdAt); err != nil {
		return models.Schedule{}, err
	}
	s.Kind = models.ScheduleKind(kind)

	var err error
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{{&s.StartTime, start}, {&s.EndTime, end}, {&s.NextRun, nextRun}, {&s.LastRun, lastRun}} {
		if *f.dst, err = parseNullTS(f.src); err != nil {
			return models.Schedule{}, err
		}
	}
	if s.ActionParams, err = unmarshalMap(params); err != nil {
		return models.Schedule{}, err
	}
	if err := json.Unmarshal([]byte(devices), &s.DeviceIDs); err != nil {
		return models.Schedule{}, fmt.Errorf("decode device ids of schedule %d: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTS(createdAt); err != nil {
		return models.Schedule{}, err
	}
	return s, nil
}
