package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"env_automation/internal/models"
	"env_automation/internal/repository"
)

var (
	ErrInvalidAlert   = errors.New("invalid alert")
	ErrDeviceNotFound = errors.New("device not found")
)

// AlertRequest is the input for creating an alert.
type AlertRequest struct {
	DeviceID     int64           `json:"device_id"`
	Name         string          `json:"name"`
	Metric       string          `json:"metric"`
	Operator     models.Operator `json:"operator"`
	Threshold    float64         `json:"threshold"`
	Enabled      *bool           `json:"enabled,omitempty"` // defaults to true
	TrendEnabled bool            `json:"trend_enabled"`
}

type AlertService struct {
	alerts  repository.AlertRepo
	events  repository.AlertEventRepo
	devices repository.DeviceRepo
}

func NewAlertService(repos *repository.Repository) *AlertService {
	return &AlertService{alerts: repos.Alerts, events: repos.AlertEvents, devices: repos.Devices}
}

// CreateAlert validates and stores an alert.
func (s *AlertService) CreateAlert(ctx context.Context, req AlertRequest) (models.Alert, error) {
	a := models.Alert{
		DeviceID:     req.DeviceID,
		Name:         strings.TrimSpace(req.Name),
		Metric:       strings.TrimSpace(req.Metric),
		Operator:     models.Operator(strings.TrimSpace(string(req.Operator))),
		Threshold:    req.Threshold,
		Enabled:      req.Enabled == nil || *req.Enabled,
		TrendEnabled: req.TrendEnabled,
		CreatedAt:    time.Now().UTC(),
	}
	switch {
	case a.Name == "":
		return models.Alert{}, fmt.Errorf("%w: name is required", ErrInvalidAlert)
	case a.Metric == "":
		return models.Alert{}, fmt.Errorf("%w: metric is required", ErrInvalidAlert)
	case !a.Operator.Valid():
		return models.Alert{}, fmt.Errorf("%w: unsupported operator %q", ErrInvalidAlert, a.Operator)
	}

	d, err := s.devices.GetByID(ctx, a.DeviceID)
	if err != nil {
		return models.Alert{}, err
	}
	if d == nil {
		return models.Alert{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, a.DeviceID)
	}

	id, err := s.alerts.Create(ctx, a)
	if err != nil {
		return models.Alert{}, err
	}
	a.ID = id
	return a, nil
}

// ListEvents returns alert events, newest first.
func (s *AlertService) ListEvents(ctx context.Context, f repository.AlertEventFilter) ([]models.AlertEvent, error) {
	return s.events.List(ctx, f)
}
