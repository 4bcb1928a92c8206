package service

import (
	"context"
	"errors"
	"time"

	"env_automation/internal/models"
	"env_automation/internal/repository"
)

// HistoryFilter selects stored readings of one device.
type HistoryFilter struct {
	DeviceID int64
	From     time.Time // zero means open
	To       time.Time // zero means open
	Limit    int
}

type HistoryService struct {
	readings repository.ReadingRepo
}

func NewHistoryService(readings repository.ReadingRepo) *HistoryService {
	return &HistoryService{readings: readings}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: from must be <= to")
	errDeviceRequired   = errors.New("device_id is required")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeHistoryFilter(f HistoryFilter) (HistoryFilter, error) {
	if f.DeviceID <= 0 {
		return HistoryFilter{}, errDeviceRequired
	}
	f.From = normalizeToUTC(f.From)
	f.To = normalizeToUTC(f.To)
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return HistoryFilter{}, errInvalidTimeRange
	}
	return f, nil
}

// Readings returns readings of a device newest first.
func (s *HistoryService) Readings(ctx context.Context, f HistoryFilter) ([]models.Reading, error) {
	f, err := normalizeHistoryFilter(f)
	if err != nil {
		return nil, err
	}
	return s.readings.List(ctx, f.DeviceID, f.From, f.To, f.Limit)
}
