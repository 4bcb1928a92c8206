package models

import "time"

// ActionStatus is the lifecycle state of a device action.
// Transitions only go forward from pending; a failed action is never retried.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionSuccess    ActionStatus = "success"
	ActionFailed     ActionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s ActionStatus) Terminal() bool {
	return s == ActionSuccess || s == ActionFailed
}

// DeviceAction is one actuation request for one device.
type DeviceAction struct {
	ID            string         `json:"id"`
	ScheduleID    *int64         `json:"schedule_id,omitempty"` // nil for manual actions
	DeviceID      int64          `json:"device_id"`
	ActionType    string         `json:"action_type"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Status        ActionStatus   `json:"status"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	ExecutedTime  *time.Time     `json:"executed_time,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// DispatchStats summarises one action dispatch pass.
type DispatchStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}
