package service

import (
	"context"
	"fmt"

	"env_automation/internal/models"
	"env_automation/internal/repository"
)

// StatusProvider exposes the poll scheduler status.
type StatusProvider interface {
	Status() models.PollerStatus
}

// StatsService builds read-only dashboard summaries.
type StatsService struct {
	poller    StatusProvider
	schedules repository.ScheduleRepo
	alerts    repository.AlertRepo
	events    repository.AlertEventRepo
	actions   repository.ActionRepo
}

func NewStatsService(poller StatusProvider, repos *repository.Repository) *StatsService {
	return &StatsService{
		poller:    poller,
		schedules: repos.Schedules,
		alerts:    repos.Alerts,
		events:    repos.AlertEvents,
		actions:   repos.Actions,
	}
}

func (s *StatsService) Summary(ctx context.Context) (models.Summary, error) {
	var out models.Summary
	out.Poller = s.poller.Status()

	var err error
	if out.Schedules, err = s.schedules.Count(ctx); err != nil {
		return models.Summary{}, fmt.Errorf("schedule stats: %w", err)
	}
	if out.Alerts, err = s.alerts.Count(ctx); err != nil {
		return models.Summary{}, fmt.Errorf("alert stats: %w", err)
	}
	if out.Alerts.ActiveEvents, err = s.events.CountUnresolved(ctx); err != nil {
		return models.Summary{}, fmt.Errorf("alert event stats: %w", err)
	}
	counts, err := s.actions.CountByStatus(ctx)
	if err != nil {
		return models.Summary{}, fmt.Errorf("action stats: %w", err)
	}
	out.Actions = map[models.ActionStatus]int{
		models.ActionPending:    counts[models.ActionPending],
		models.ActionInProgress: counts[models.ActionInProgress],
		models.ActionSuccess:    counts[models.ActionSuccess],
		models.ActionFailed:     counts[models.ActionFailed],
	}
	return out, nil
}
