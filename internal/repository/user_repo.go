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

// UserSQLite stores operator accounts for the automation API.
type UserSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserSQLite(db *sql.DB) *UserSQLite { return &UserSQLite{db: db, now: time.Now} }

var _ Authorization = (*UserSQLite)(nil)

const (
	insertUserSQL           = `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`
	selectUserByUsernameSQL = `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`
)

// isUniqueViolation matches SQLite's constraint error text; the driver exposes no typed code for it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts an operator and returns its id. A duplicate username yields ErrUsernameTaken.
func (r *UserSQLite) Create(ctx context.Context, username, passwordHash string) (int, error) {
	res, err := r.db.ExecContext(ctx, insertUserSQL, username, passwordHash, formatTS(r.now()))
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("insert user %q: %w", username, ErrUsernameTaken)
	}
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id for user %q: %w", username, err)
	}
	return int(id), nil
}

// GetByUsername returns (nil, nil) when no operator has that username.
func (r *UserSQLite) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var (
		u       models.User
		created string
	)
	err := r.db.QueryRowContext(ctx, selectUserByUsernameSQL, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	if u.CreatedAt, err = parseTS(created); err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return &u, nil
}
