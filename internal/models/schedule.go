package models

import "time"

// ScheduleKind selects the next-run rule of a schedule.
type ScheduleKind string

const (
	KindOneOff    ScheduleKind = "ONE_OFF"
	KindInterval  ScheduleKind = "INTERVAL"
	KindCron      ScheduleKind = "CRON"
	KindRecurring ScheduleKind = "RECURRING"
	KindStatic    ScheduleKind = "STATIC"
)

// Recurrence frequencies for RECURRING schedules.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Run statuses recorded on a schedule.
const (
	RunStatusSuccess = "success"
)

// Schedule produces device actions for its bound devices whenever it is due.
// NextRun is nil only once the schedule is exhausted or invalid, and then Enabled is false.
type Schedule struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Kind            ScheduleKind   `json:"kind"`
	StartTime       *time.Time     `json:"start_time,omitempty"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	IntervalSeconds int            `json:"interval_seconds,omitempty"`
	CronExpression  string         `json:"cron_expression,omitempty"`
	Frequency       string         `json:"frequency,omitempty"`
	Timezone        string         `json:"timezone,omitempty"`
	Enabled         bool           `json:"enabled"`
	NextRun         *time.Time     `json:"next_run,omitempty"`
	LastRun         *time.Time     `json:"last_run,omitempty"`
	LastRunStatus   string         `json:"last_run_status,omitempty"`
	ActionType      string         `json:"action_type"`
	ActionParams    map[string]any `json:"action_params,omitempty"`
	DeviceIDs       []int64        `json:"device_ids"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ScheduleRunStats summarises one due-schedule pass.
type ScheduleRunStats struct {
	Due            int `json:"due"`
	Processed      int `json:"processed"`
	Skipped        int `json:"skipped"`
	Disabled       int `json:"disabled"`
	ActionsCreated int `json:"actions_created"`
	Errors         int `json:"errors"`
}
