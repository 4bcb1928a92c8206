package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"env_automation/internal/models"
)

var (
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrActionNotPending is returned when completing an action that already left pending.
	ErrActionNotPending = errors.New("action is not pending")
	// ErrUsernameTaken is returned when creating an operator whose username exists.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrScheduleNameTaken is returned when creating a schedule whose name exists.
	ErrScheduleNameTaken = errors.New("schedule name already taken")
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// DeviceFilter narrows device listings. Nil fields do not filter.
type DeviceFilter struct {
	Type        string
	PollEnabled *bool
	IsActive    *bool
}

type DeviceRepo interface {
	Create(ctx context.Context, d models.Device) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Device, error)
	List(ctx context.Context, f DeviceFilter) ([]models.Device, error)
	ListPollable(ctx context.Context) ([]models.Device, error)
	UpdatePollStatus(ctx context.Context, id int64, polledAt time.Time, lastError string) error
	Delete(ctx context.Context, id int64) error
}

type ReadingRepo interface {
	Append(ctx context.Context, r models.Reading) (int64, error)
	Latest(ctx context.Context, deviceID int64) (*models.Reading, error)
	List(ctx context.Context, deviceID int64, from, to time.Time, limit int) ([]models.Reading, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type AlertRepo interface {
	Create(ctx context.Context, a models.Alert) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Alert, error)
	ListEnabled(ctx context.Context) ([]models.Alert, error)
	ListByDevice(ctx context.Context, deviceID int64) ([]models.Alert, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (models.AlertCounts, error)
}

// AlertEventFilter narrows alert event listings. Nil fields do not filter.
type AlertEventFilter struct {
	AlertID  *int64
	DeviceID *int64
	Resolved *bool
	Limit    int
}

type AlertEventRepo interface {
	Create(ctx context.Context, e models.AlertEvent) error
	GetUnresolved(ctx context.Context, alertID int64) (*models.AlertEvent, error)
	Resolve(ctx context.Context, id string, at time.Time, value float64) error
	List(ctx context.Context, f AlertEventFilter) ([]models.AlertEvent, error)
	CountUnresolved(ctx context.Context) (int, error)
}

// RunState is the post-run update applied to a schedule.
type RunState struct {
	LastRun       time.Time
	LastRunStatus string
	NextRun       *time.Time
	Enabled       bool
}

type ScheduleRepo interface {
	Create(ctx context.Context, s models.Schedule) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Schedule, error)
	List(ctx context.Context, enabledOnly bool) ([]models.Schedule, error)
	ListDue(ctx context.Context, now time.Time) ([]models.Schedule, error)
	UpdateRunState(ctx context.Context, id int64, st RunState) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (models.ScheduleCounts, error)
}

// ActionFilter narrows device action listings. Zero fields do not filter.
type ActionFilter struct {
	DeviceID   int64
	ScheduleID int64
	Status     models.ActionStatus
	Limit      int
}

// Completion is the terminal update applied to a pending action.
type Completion struct {
	Status       models.ActionStatus
	ExecutedTime time.Time
	Result       map[string]any
	ErrorMessage string
}

type ActionRepo interface {
	Create(ctx context.Context, a models.DeviceAction) (string, error)
	GetByID(ctx context.Context, id string) (*models.DeviceAction, error)
	ListPendingDue(ctx context.Context, now time.Time) ([]models.DeviceAction, error)
	List(ctx context.Context, f ActionFilter) ([]models.DeviceAction, error)
	Complete(ctx context.Context, id string, c Completion) error
	CountByStatus(ctx context.Context) (map[models.ActionStatus]int, error)
}

type Repository struct {
	Devices     DeviceRepo
	Readings    ReadingRepo
	Alerts      AlertRepo
	AlertEvents AlertEventRepo
	Schedules   ScheduleRepo
	Actions     ActionRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Devices:     NewDeviceSQLite(db),
		Readings:    NewReadingSQLite(db),
		Alerts:      NewAlertSQLite(db),
		AlertEvents: NewAlertEventSQLite(db),
		Schedules:   NewScheduleSQLite(db),
		Actions:     NewActionSQLite(db),
		Auth:        NewUserSQLite(db),
	}
}
