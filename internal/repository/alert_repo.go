package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"env_automation/internal/models"
)

type AlertSQLite struct {
	db *sql.DB
}

func NewAlertSQLite(db *sql.DB) *AlertSQLite { return &AlertSQLite{db: db} }

var _ AlertRepo = (*AlertSQLite)(nil)

const (
	alertColumns = `id, device_id, name, metric, operator, threshold, enabled, trend_enabled, created_at`

	insertAlertSQL = `INSERT INTO alerts (device_id, name, metric, operator, threshold, enabled, trend_enabled, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectAlertByIDSQL = `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	selectEnabledAlertsSQL = `SELECT ` + alertColumns + ` FROM alerts WHERE enabled = 1 ORDER BY id ASC`

	selectAlertsByDeviceSQL = `SELECT ` + alertColumns + ` FROM alerts WHERE device_id = ? ORDER BY id ASC`

	updateAlertEnabledSQL = `UPDATE alerts SET enabled = ? WHERE id = ?`

	deleteAlertSQL = `DELETE FROM alerts WHERE id = ?`

	countAlertsSQL = `SELECT COUNT(*), COALESCE(SUM(CASE WHEN enabled = 1 THEN 1 ELSE 0 END), 0) FROM alerts`
)

func (r *AlertSQLite) Create(ctx context.Context, a models.Alert) (int64, error) {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, insertAlertSQL,
		a.DeviceID, a.Name, a.Metric, string(a.Operator), a.Threshold, a.Enabled, a.TrendEnabled, formatTS(created))
	if err != nil {
		return 0, fmt.Errorf("insert alert %q: %w", a.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for alert %q: %w", a.Name, err)
	}
	return id, nil
}

// GetByID fetches an alert. Returns (nil, nil) if not found.
func (r *AlertSQLite) GetByID(ctx context.Context, id int64) (*models.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, selectAlertByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select alert %d: %w", id, err)
	}
	return &a, nil
}

func (r *AlertSQLite) ListEnabled(ctx context.Context) ([]models.Alert, error) {
	return r.query(ctx, selectEnabledAlertsSQL)
}

func (r *AlertSQLite) ListByDevice(ctx context.Context, deviceID int64) ([]models.Alert, error) {
	return r.query(ctx, selectAlertsByDeviceSQL, deviceID)
}

func (r *AlertSQLite) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx, updateAlertEnabledSQL, enabled, id)
	if err != nil {
		return fmt.Errorf("update alert %d: %w", id, err)
	}
	return expectAffected(res, fmt.Sprintf("alert %d", id))
}

func (r *AlertSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteAlertSQL, id)
	if err != nil {
		return fmt.Errorf("delete alert %d: %w", id, err)
	}
	return expectAffected(res, fmt.Sprintf("alert %d", id))
}

// Count returns total and enabled alerts; ActiveEvents is left to AlertEventRepo.
func (r *AlertSQLite) Count(ctx context.Context) (models.AlertCounts, error) {
	var c models.AlertCounts
	if err := r.db.QueryRowContext(ctx, countAlertsSQL).Scan(&c.Total, &c.Enabled); err != nil {
		return models.AlertCounts{}, fmt.Errorf("count alerts: %w", err)
	}
	return c, nil
}

func (r *AlertSQLite) query(ctx context.Context, q string, args ...any) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var (
		a         models.Alert
		op        string
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.DeviceID, &a.Name, &a.Metric, &op, &a.Threshold,
		&a.Enabled, &a.TrendEnabled, &createdAt); err != nil {
		return models.Alert{}, err
	}
	a.Operator = models.Operator(op)
	var err error
	if a.CreatedAt, err = parseTS(createdAt); err != nil {
		return models.Alert{}, err
	}
	return a, nil
}
