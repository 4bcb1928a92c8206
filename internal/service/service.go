package service

import (
	"context"
	"time"

	"env_automation/internal/config"
	"env_automation/internal/device"
	"env_automation/internal/logger"
	"env_automation/internal/models"
	"env_automation/internal/notify"
	"env_automation/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Poller runs the background polling loops.
type Poller interface {
	Start(ctx context.Context) error
	Stop() error
	Status() models.PollerStatus
	Reconcile(ctx context.Context) error
}

// Alerts evaluates threshold rules against the latest readings.
type Alerts interface {
	EvaluateAll(ctx context.Context) (models.EvaluationStats, error)
	EvaluateOne(ctx context.Context, a models.Alert) (models.EvaluationOutcome, error)
}

// AlertAdmin manages alert definitions and exposes their events.
type AlertAdmin interface {
	CreateAlert(ctx context.Context, req AlertRequest) (models.Alert, error)
	ListEvents(ctx context.Context, f repository.AlertEventFilter) ([]models.AlertEvent, error)
}

// Jobs turns schedules into device actions and dispatches them.
type Jobs interface {
	CreateSchedule(ctx context.Context, req ScheduleRequest) (models.Schedule, error)
	CreateManualAction(ctx context.Context, req ManualActionRequest) (models.DeviceAction, error)
	ProcessDueSchedules(ctx context.Context) (models.ScheduleRunStats, error)
	DispatchPending(ctx context.Context) (models.DispatchStats, error)
	RunOnce(ctx context.Context) error
}

type Devices interface {
	Register(ctx context.Context, req DeviceRequest) (models.Device, error)
	Remove(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*models.Device, error)
	List(ctx context.Context, f repository.DeviceFilter) ([]models.Device, error)
	TestConnection(ctx context.Context, id int64) error
}

type History interface {
	Readings(ctx context.Context, f HistoryFilter) ([]models.Reading, error)
}

type Stats interface {
	Summary(ctx context.Context) (models.Summary, error)
}

// Service aggregates all sub-services.
type Service struct {
	Poller
	Alerts
	AlertAdmin
	Jobs
	Devices
	History
	Stats
	Authorization
}

// Deps carries the runtime collaborators shared by the services.
// Cache and Publisher are optional; leave them nil when the integration is off.
type Deps struct {
	Registry  *device.Registry
	Cache     ReadingCache
	Publisher notify.Publisher
	Clock     Clock
	Log       *logger.Logger
}

// NewService wires the repository layer into concrete services.
func NewService(repos *repository.Repository, cfg *config.Config, deps Deps) *Service {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}

	poller := NewPollScheduler(repos.Devices, repos.Readings, deps.Registry, deps.Cache, PollerConfig{
		ReconcileInterval: cfg.Poller.ReconcileInterval,
		Retention:         cfg.Poller.Retention,
		ErrorBackoff:      cfg.Poller.ErrorBackoff,
		DrainTimeout:      cfg.Poller.DrainTimeout,
		DefaultInterval:   cfg.Poller.DefaultInterval,
		IntervalUnit:      time.Second,
	}, deps.Clock, deps.Log)

	return &Service{
		Poller:        poller,
		Alerts:        NewAlertEngine(repos, deps.Cache, deps.Publisher, cfg.Alerts.FreshnessWindow, deps.Clock, deps.Log),
		AlertAdmin:    NewAlertService(repos),
		Jobs:          NewJobScheduler(repos, deps.Registry, deps.Publisher, deps.Clock, deps.Log),
		Devices:       NewDeviceService(repos.Devices, deps.Registry, deps.Cache, deps.Log),
		History:       NewHistoryService(repos.Readings),
		Stats:         NewStatsService(poller, repos),
		Authorization: NewAuthService(repos.Auth, cfg.Auth.SigningKey, cfg.Auth.TokenTTL),
	}
}
