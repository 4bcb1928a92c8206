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

type ActionSQLite struct {
	db *sql.DB
}

func NewActionSQLite(db *sql.DB) *ActionSQLite { return &ActionSQLite{db: db} }

var _ ActionRepo = (*ActionSQLite)(nil)

const (
	actionColumns = `id, schedule_id, device_id, action_type, parameters, status, scheduled_time, executed_time, result, error_message, created_at`

	insertActionSQL = `INSERT INTO device_actions (id, schedule_id, device_id, action_type, parameters, status, scheduled_time, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectActionByIDSQL = `SELECT ` + actionColumns + ` FROM device_actions WHERE id = ?`

	selectPendingDueActionsSQL = `SELECT ` + actionColumns + ` FROM device_actions WHERE status = 'pending' AND scheduled_time <= ? ORDER BY scheduled_time ASC, created_at ASC`

	// Only a pending action may be completed; this keeps terminal states final.
	completeActionSQL = `UPDATE device_actions SET status = ?, executed_time = ?, result = ?, error_message = ? WHERE id = ? AND status = 'pending'`

	countActionsByStatusSQL = `SELECT status, COUNT(*) FROM device_actions GROUP BY status`

	defaultActionLimit = 200
)

// Create inserts a pending action and returns its generated ID.
func (r *ActionSQLite) Create(ctx context.Context, a models.DeviceAction) (string, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := a.Status
	if status == "" {
		status = models.ActionPending
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	scheduled := a.ScheduledTime
	if scheduled.IsZero() {
		scheduled = created
	}
	params, err := marshalMap(a.Parameters)
	if err != nil {
		return "", err
	}
	var scheduleID any
	if a.ScheduleID != nil {
		scheduleID = *a.ScheduleID
	}
	if _, err := r.db.ExecContext(ctx, insertActionSQL,
		id, scheduleID, a.DeviceID, a.ActionType, params, string(status), formatTS(scheduled), formatTS(created)); err != nil {
		return "", fmt.Errorf("insert action for device %d: %w", a.DeviceID, err)
	}
	return id, nil
}

// GetByID fetches an action. Returns (nil, nil) if not found.
func (r *ActionSQLite) GetByID(ctx context.Context, id string) (*models.DeviceAction, error) {
	a, err := scanAction(r.db.QueryRowContext(ctx, selectActionByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select action %s: %w", id, err)
	}
	return &a, nil
}

// ListPendingDue returns pending actions scheduled at or before now, oldest first.
func (r *ActionSQLite) ListPendingDue(ctx context.Context, now time.Time) ([]models.DeviceAction, error) {
	return r.query(ctx, selectPendingDueActionsSQL, formatTS(now))
}

// List returns actions matching f, newest first.
func (r *ActionSQLite) List(ctx context.Context, f ActionFilter) ([]models.DeviceAction, error) {
	var (
		conds []string
		args  []any
	)
	if f.DeviceID != 0 {
		conds = append(conds, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.ScheduleID != 0 {
		conds = append(conds, "schedule_id = ?")
		args = append(args, f.ScheduleID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultActionLimit
	}

	q := `SELECT ` + actionColumns + ` FROM device_actions`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY scheduled_time DESC LIMIT ?"
	args = append(args, limit)
	return r.query(ctx, q, args...)
}

// Complete moves a pending action to a terminal state.
// It returns ErrActionNotPending if the action is missing or already completed.
func (r *ActionSQLite) Complete(ctx context.Context, id string, c Completion) error {
	if !c.Status.Terminal() {
		return fmt.Errorf("complete action %s: status %q is not terminal", id, c.Status)
	}
	result, err := marshalMap(c.Result)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, completeActionSQL,
		string(c.Status), formatTS(c.ExecutedTime), result, nullString(c.ErrorMessage), id)
	if err != nil {
		return fmt.Errorf("complete action %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for action %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("action %s: %w", id, ErrActionNotPending)
	}
	return nil
}

func (r *ActionSQLite) CountByStatus(ctx context.Context) (map[models.ActionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, countActionsByStatusSQL)
	if err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	defer rows.Close()

	out := make(map[models.ActionStatus]int, 4)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		out[models.ActionStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ActionSQLite) query(ctx context.Context, q string, args ...any) ([]models.DeviceAction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []models.DeviceAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanAction(row rowScanner) (models.DeviceAction, error) {
	var (
		a          models.DeviceAction
		scheduleID sql.NullInt64
		params     sql.NullString
		status     string
		scheduled  string
		executed   sql.NullString
		result     sql.NullString
		errMsg     sql.NullString
		createdAt  string
	)
	if err := row.Scan(&a.ID, &scheduleID, &a.DeviceID, &a.ActionType, &params, &status,
		&scheduled, &executed, &result, &errMsg, &createdAt); err != nil {
		return models.DeviceAction{}, err
	}
	if scheduleID.Valid {
		v := scheduleID.Int64
		a.ScheduleID = &v
	}
	a.Status = models.ActionStatus(status)
	a.ErrorMessage = errMsg.String

	var err error
	if a.Parameters, err = unmarshalMap(params); err != nil {
		return models.DeviceAction{}, err
	}
	if a.ScheduledTime, err = parseTS(scheduled); err != nil {
		return models.DeviceAction{}, err
	}
	if a.ExecutedTime, err = parseNullTS(executed); err != nil {
		return models.DeviceAction{}, err
	}
	if a.Result, err = unmarshalMap(result); err != nil {
		return models.DeviceAction{}, err
	}
	if a.CreatedAt, err = parseTS(createdAt); err != nil {
		return models.DeviceAction{}, err
	}
	return a, nil
}
