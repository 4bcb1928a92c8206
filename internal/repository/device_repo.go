package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"env_automation/internal/models"
)

type DeviceSQLite struct {
	db *sql.DB
}

func NewDeviceSQLite(db *sql.DB) *DeviceSQLite { return &DeviceSQLite{db: db} }

var _ DeviceRepo = (*DeviceSQLite)(nil)

const (
	deviceColumns = `id, name, type, config, poll_enabled, poll_interval, is_active, last_polled, last_error, created_at`

	insertDeviceSQL = `INSERT INTO devices (name, type, config, poll_enabled, poll_interval, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectDeviceByIDSQL = `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	selectPollableDevicesSQL = `SELECT ` + deviceColumns + ` FROM devices WHERE poll_enabled = 1 AND is_active = 1 ORDER BY id ASC`

	updatePollStatusSQL = `UPDATE devices SET last_polled = ?, last_error = ? WHERE id = ?`

	deleteDeviceSQL = `DELETE FROM devices WHERE id = ?`
)

// Create inserts a device and returns its ID.
func (r *DeviceSQLite) Create(ctx context.Context, d models.Device) (int64, error) {
	cfg, err := marshalMap(d.Config)
	if err != nil {
		return 0, err
	}
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, insertDeviceSQL,
		d.Name, d.Type, cfg, d.PollEnabled, d.PollInterval, d.IsActive, formatTS(created))
	if err != nil {
		return 0, fmt.Errorf("insert device %q: %w", d.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for device %q: %w", d.Name, err)
	}
	return id, nil
}

// GetByID fetches a device. Returns (nil, nil) if not found.
func (r *DeviceSQLite) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, selectDeviceByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select device %d: %w", id, err)
	}
	return &d, nil
}

// List returns devices matching f, ordered by id.
func (r *DeviceSQLite) List(ctx context.Context, f DeviceFilter) ([]models.Device, error) {
	var (
		conds []string
		args  []any
	)
	if typ := strings.TrimSpace(f.Type); typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}
	if f.PollEnabled != nil {
		conds = append(conds, "poll_enabled = ?")
		args = append(args, *f.PollEnabled)
	}
	if f.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *f.IsActive)
	}

	q := `SELECT ` + deviceColumns + ` FROM devices`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY id ASC"
	return r.query(ctx, q, args...)
}

// ListPollable returns devices with poll_enabled and is_active set.
func (r *DeviceSQLite) ListPollable(ctx context.Context) ([]models.Device, error) {
	return r.query(ctx, selectPollableDevicesSQL)
}

// UpdatePollStatus records a poll attempt. An empty lastError clears the previous one.
func (r *DeviceSQLite) UpdatePollStatus(ctx context.Context, id int64, polledAt time.Time, lastError string) error {
	res, err := r.db.ExecContext(ctx, updatePollStatusSQL, formatTS(polledAt), nullString(lastError), id)
	if err != nil {
		return fmt.Errorf("update poll status of device %d: %w", id, err)
	}
	return expectAffected(res, fmt.Sprintf("device %d", id))
}

func (r *DeviceSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteDeviceSQL, id)
	if err != nil {
		return fmt.Errorf("delete device %d: %w", id, err)
	}
	return expectAffected(res, fmt.Sprintf("device %d", id))
}

func (r *DeviceSQLite) query(ctx context.Context, q string, args ...any) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	out := make([]models.Device, 0, 16)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanDevice(row rowScanner) (models.Device, error) {
	var (
		d          models.Device
		cfg        sql.NullString
		lastPolled sql.NullString
		lastError  sql.NullString
		createdAt  string
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Type, &cfg, &d.PollEnabled, &d.PollInterval,
		&d.IsActive, &lastPolled, &lastError, &createdAt); err != nil {
		return models.Device{}, err
	}
	var err error
	if d.Config, err = unmarshalMap(cfg); err != nil {
		return models.Device{}, err
	}
	if d.LastPolled, err = parseNullTS(lastPolled); err != nil {
		return models.Device{}, err
	}
	if d.CreatedAt, err = parseTS(createdAt); err != nil {
		return models.Device{}, err
	}
	d.LastError = lastError.String
	return d, nil
}
