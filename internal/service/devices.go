package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"env_automation/internal/device"
	"env_automation/internal/logger"
	"env_automation/internal/models"
	"env_automation/internal/repository"
)

var ErrInvalidDevice = errors.New("invalid device")

// DeviceRequest is the input for registering a device.
type DeviceRequest struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Config       map[string]any `json:"config,omitempty"`
	PollEnabled  bool           `json:"poll_enabled"`
	PollInterval int            `json:"poll_interval"`       // seconds, 0 uses the default
	IsActive     *bool          `json:"is_active,omitempty"` // defaults to true
}

// DeviceService registers devices and keeps the driver registry in step with the Store.
type DeviceService struct {
	devices  repository.DeviceRepo
	registry *device.Registry
	cache    ReadingCache
	log      *logger.Logger
}

// readingInvalidator is implemented by caches that can drop a device's entry.
type readingInvalidator interface {
	Invalidate(ctx context.Context, deviceID int64) error
}

// NewDeviceService builds the service; cache may be nil.
func NewDeviceService(devices repository.DeviceRepo, registry *device.Registry, cache ReadingCache, log *logger.Logger) *DeviceService {
	return &DeviceService{devices: devices, registry: registry, cache: cache, log: log.Named("devices")}
}

// Register validates the type tag, stores the device and resolves its driver.
// A device whose driver cannot be built is removed again.
func (s *DeviceService) Register(ctx context.Context, req DeviceRequest) (models.Device, error) {
	d := models.Device{
		Name:         strings.TrimSpace(req.Name),
		Type:         strings.ToLower(strings.TrimSpace(req.Type)),
		Config:       req.Config,
		PollEnabled:  req.PollEnabled,
		PollInterval: req.PollInterval,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	switch {
	case d.Name == "":
		return models.Device{}, fmt.Errorf("%w: name is required", ErrInvalidDevice)
	case d.PollInterval < 0:
		return models.Device{}, fmt.Errorf("%w: poll_interval must not be negative", ErrInvalidDevice)
	case !s.registry.Factory().Supports(d.Type):
		return models.Device{}, fmt.Errorf("%w: %q: %w", ErrInvalidDevice, d.Type, device.ErrUnknownType)
	}

	id, err := s.devices.Create(ctx, d)
	if err != nil {
		return models.Device{}, err
	}
	d.ID = id

	if _, err := s.registry.Resolve(d); err != nil {
		if delErr := s.devices.Delete(ctx, id); delErr != nil {
			s.log.Errorw("device_rollback_failed", "device_id", id, "error", delErr)
		}
		return models.Device{}, fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}
	s.log.Infow("device_registered", "device_id", id, "type", d.Type, "poll_enabled", d.PollEnabled)
	return d, nil
}

// Remove deletes a device and drops its driver. Its poll loop exits on its next iteration.
func (s *DeviceService) Remove(ctx context.Context, id int64) error {
	if err := s.devices.Delete(ctx, id); err != nil {
		return err
	}
	s.registry.Forget(id)
	if inv, ok := s.cache.(readingInvalidator); ok {
		if err := inv.Invalidate(ctx, id); err != nil {
			s.log.Warnw("cache_invalidate_failed", "device_id", id, "error", err)
		}
	}
	return nil
}

func (s *DeviceService) Get(ctx context.Context, id int64) (*models.Device, error) {
	return s.devices.GetByID(ctx, id)
}

func (s *DeviceService) List(ctx context.Context, f repository.DeviceFilter) ([]models.Device, error) {
	return s.devices.List(ctx, f)
}

// TestConnection probes the driver of a stored device.
func (s *DeviceService) TestConnection(ctx context.Context, id int64) error {
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrDeviceNotFound
	}
	drv, err := s.registry.Resolve(*d)
	if err != nil {
		return err
	}
	return drv.TestConnection(ctx)
}
