package models

// Summary is the dashboard view over the automation core.
type Summary struct {
	Poller    PollerStatus         `json:"poller"`
	Schedules ScheduleCounts       `json:"schedules"`
	Alerts    AlertCounts          `json:"alerts"`
	Actions   map[ActionStatus]int `json:"actions"`
}

type ScheduleCounts struct {
	Total   int `json:"total"`
	Enabled int `json:"enabled"`
}

type AlertCounts struct {
	Total        int `json:"total"`
	Enabled      int `json:"enabled"`
	ActiveEvents int `json:"active_events"`
}
