package models

import "time"

// Reading is one successful sample of a device. Immutable once stored.
type Reading struct {
	ID        int64          `json:"id"`
	DeviceID  int64          `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	Value     *float64       `json:"value,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}
