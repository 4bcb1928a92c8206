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

// ReadingSQLite stores device history rows.
type ReadingSQLite struct {
	db *sql.DB
}

func NewReadingSQLite(db *sql.DB) *ReadingSQLite { return &ReadingSQLite{db: db} }

var _ ReadingRepo = (*ReadingSQLite)(nil)

const (
	readingColumns = `id, device_id, ts, value, payload, context`

	insertReadingSQL = `INSERT INTO readings (device_id, ts, value, payload, context) VALUES (?, ?, ?, ?, ?)`

	selectLatestReadingSQL = `SELECT ` + readingColumns + ` FROM readings WHERE device_id = ? ORDER BY ts DESC, id DESC LIMIT 1`

	deleteReadingsOlderThanSQL = `DELETE FROM readings WHERE ts < ?`

	defaultReadingLimit = 500
	maxReadingLimit     = 5000
)

// Append stores a reading. A zero Timestamp is set to now (UTC).
func (r *ReadingSQLite) Append(ctx context.Context, rd models.Reading) (int64, error) {
	ts := rd.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	payload, err := marshalMap(rd.Payload)
	if err != nil {
		return 0, err
	}
	meta, err := marshalMap(rd.Context)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, insertReadingSQL, rd.DeviceID, formatTS(ts), nullFloat(rd.Value), payload, meta)
	if err != nil {
		return 0, fmt.Errorf("insert reading for device %d: %w", rd.DeviceID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for reading of device %d: %w", rd.DeviceID, err)
	}
	return id, nil
}

// Latest returns the newest reading of a device, or (nil, nil) when it has none.
func (r *ReadingSQLite) Latest(ctx context.Context, deviceID int64) (*models.Reading, error) {
	rd, err := scanReading(r.db.QueryRowContext(ctx, selectLatestReadingSQL, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select latest reading of device %d: %w", deviceID, err)
	}
	return &rd, nil
}

// List returns readings of a device within [from, to] (zero bounds are open), newest first.
func (r *ReadingSQLite) List(ctx context.Context, deviceID int64, from, to time.Time, limit int) ([]models.Reading, error) {
	conds := []string{"device_id = ?"}
	args := []any{deviceID}
	if !from.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, formatTS(from))
	}
	if !to.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, formatTS(to))
	}
	if limit <= 0 {
		limit = defaultReadingLimit
	}
	if limit > maxReadingLimit {
		limit = maxReadingLimit
	}
	args = append(args, limit)

	q := `SELECT ` + readingColumns + ` FROM readings WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY ts DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings of device %d: %w", deviceID, err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0, 64)
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOlderThan removes history rows with ts < cutoff and returns how many were removed.
func (r *ReadingSQLite) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteReadingsOlderThanSQL, formatTS(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete readings older than %s: %w", cutoff.UTC().Format(time.RFC3339), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for reading cleanup: %w", err)
	}
	return n, nil
}

func scanReading(row rowScanner) (models.Reading, error) {
	var (
		rd      models.Reading
		ts      string
		value   sql.NullFloat64
		payload sql.NullString
		meta    sql.NullString
	)
	if err := row.Scan(&rd.ID, &rd.DeviceID, &ts, &value, &payload, &meta); err != nil {
		return models.Reading{}, err
	}
	var err error
	if rd.Timestamp, err = parseTS(ts); err != nil {
		return models.Reading{}, err
	}
	rd.Value = floatPtr(value)
	if rd.Payload, err = unmarshalMap(payload); err != nil {
		return models.Reading{}, err
	}
	if rd.Context, err = unmarshalMap(meta); err != nil {
		return models.Reading{}, err
	}
	return rd, nil
}
