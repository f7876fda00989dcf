package service

import (
	"context"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/repository"
)

// statsService reads store totals for the admin API
type statsService struct {
	repos *repository.Repositories
}

// NewStatsService creates a StatsService
func NewStatsService(repos *repository.Repositories) StatsService {
	return &statsService{repos: repos}
}

func (s *statsService) Snapshot(ctx context.Context) (*models.Stats, error) {
	reports, err := s.repos.Report.Count(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.repos.Mirror.All(ctx)
	if err != nil {
		return nil, err
	}
	sinks, err := s.repos.Sink.List(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Stats{Reports: reports, MirroredRows: len(entries), Sinks: sinks}, nil
}
