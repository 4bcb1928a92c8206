package models

import "time"

// Device is a sensor or actuator known to the store.
type Device struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`             // driver type tag: thermal | relay | mqtt
	Config       map[string]any `json:"config,omitempty"` // driver-specific settings
	PollEnabled  bool           `json:"poll_enabled"`
	PollInterval int            `json:"poll_interval"` // seconds
	IsActive     bool           `json:"is_active"`
	LastPolled   *time.Time     `json:"last_polled,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Pollable reports whether the poll scheduler should run a loop for the device.
func (d Device) Pollable() bool {
	return d.PollEnabled && d.IsActive
}

// PollerStatus is the read-only summary exposed by the poll scheduler.
type PollerStatus struct {
	Running     bool `json:"running"`
	DeviceCount int  `json:"device_count"`
	ActiveLoops int  `json:"active_loops"`
}
