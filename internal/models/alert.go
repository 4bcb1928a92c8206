package models

import "time"

// Operator is a threshold comparison operator.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Alert is a threshold rule on one metric of one device.
type Alert struct {
	ID           int64     `json:"id"`
	DeviceID     int64     `json:"device_id"`
	Name         string    `json:"name"`
	Metric       string    `json:"metric"`
	Operator     Operator  `json:"operator"`
	Threshold    float64   `json:"threshold"`
	Enabled      bool      `json:"enabled"`
	TrendEnabled bool      `json:"trend_enabled"` // reserved
	CreatedAt    time.Time `json:"created_at"`
}

// AlertEvent records one trigger edge and, later, its resolution.
// Threshold, operator and metric are snapshots taken at trigger time.
type AlertEvent struct {
	ID              string     `json:"id"`
	AlertID         int64      `json:"alert_id"`
	DeviceID        int64      `json:"device_id"`
	TriggeredAt     time.Time  `json:"triggered_at"`
	CurrentValue    float64    `json:"current_value"`
	ThresholdValue  float64    `json:"threshold_value"`
	Operator        Operator   `json:"operator"`
	Metric          string     `json:"metric"`
	Resolved        bool       `json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionValue *float64   `json:"resolution_value,omitempty"`
}

// EvaluationOutcome is the result of evaluating a single alert.
type EvaluationOutcome struct {
	AlertID   int64    `json:"alert_id"`
	Evaluated bool     `json:"evaluated"`
	Triggered bool     `json:"triggered"`
	Resolved  bool     `json:"resolved"`
	Skipped   bool     `json:"skipped"`
	Reason    string   `json:"reason,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	EventID   string   `json:"event_id,omitempty"`
	Trend     string   `json:"trend,omitempty"`
}

// EvaluationStats summarises one evaluation batch.
type EvaluationStats struct {
	Total     int `json:"total"`
	Evaluated int `json:"evaluated"`
	Triggered int `json:"triggered"`
	Resolved  int `json:"resolved"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}
