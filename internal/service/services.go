package service

import (
	"context"
	"time"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/repository"
	"github.com/field-worklog-bot/internal/roles"
	"github.com/field-worklog-bot/internal/sink"
	"github.com/rs/zerolog"
)

// ReportService defines report operations available to the dialog
type ReportService interface {
	Create(ctx context.Context, report *models.Report) error
	// Owned loads a report the actor may still change
	Owned(ctx context.Context, actorID, reportID int64) (*models.Report, error)
	ApplyEdit(ctx context.Context, actorID, reportID int64, edit models.FieldEdit) (*models.Report, error)
	Delete(ctx context.Context, actorID, reportID int64) error
	Recent(ctx context.Context, userID int64) ([]*models.Report, error)
	SumHours(ctx context.Context, userID int64, date time.Time, excludeID int64) (int, error)
}

// UserService identifies chat users
type UserService interface {
	Identify(ctx context.Context, ev *models.ChatEvent) (*models.User, error)
}

// SyncService runs the report mirror
type SyncService interface {
	Run(ctx context.Context) (*models.SyncResult, error)
}

// SchedulerService triggers sync runs on a cadence
type SchedulerService interface {
	StartProcessor(ctx context.Context)
	StopProcessor()
	RunNow(ctx context.Context) (*models.SyncResult, error)
}

// StatsService summarizes the store for administrators
type StatsService interface {
	Snapshot(ctx context.Context) (*models.Stats, error)
}

// Services holds all service interfaces
type Services struct {
	Report    ReportService
	User      UserService
	Sync      SyncService
	Scheduler SchedulerService
	Stats     StatsService
}

// Deps carries the collaborators that are built outside the service layer
type Deps struct {
	Repos     *repository.Repositories
	Sink      sink.Sink
	Locker    Locker
	Resolver  *roles.Resolver
	EditLimit time.Duration // report edit window
	Sync      SyncOptions
	Interval  time.Duration
}

// NewServices creates all services
func NewServices(d Deps, log zerolog.Logger) *Services {
	syncSvc := NewSyncEngine(d.Repos, d.Sink, d.Locker, d.Sync, log)
	return &Services{
		Report:    NewReportService(d.Repos.Report, d.EditLimit, log),
		User:      NewUserService(d.Repos.User, d.Resolver),
		Sync:      syncSvc,
		Scheduler: NewScheduler(syncSvc, d.Interval, log),
		Stats:     NewStatsService(d.Repos),
	}
}
