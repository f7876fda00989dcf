package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/field-worklog-bot/internal/database"
	"github.com/field-worklog-bot/internal/models"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Upsert(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	AssignedRole(ctx context.Context, id int64) (models.Role, bool, error)
	IsBrigadier(ctx context.Context, id int64) (bool, error)
}

// ReferenceRepository exposes the curated reference lists read by the dialog
type ReferenceRepository interface {
	Locations(ctx context.Context) ([]models.Location, error)
	Location(ctx context.Context, id int64) (*models.Location, error)
	Activities(ctx context.Context, kind models.WorkKind, machineKindID int64) ([]models.Activity, error)
	Activity(ctx context.Context, id int64) (*models.Activity, error)
	MachineKinds(ctx context.Context) ([]models.MachineKind, error)
	MachineKind(ctx context.Context, id int64) (*models.MachineKind, error)
	MachineKindByName(ctx context.Context, name string) (*models.MachineKind, error)
	Machines(ctx context.Context, kindID int64) ([]models.Machine, error)
	Machine(ctx context.Context, id int64) (*models.Machine, error)
	Crops(ctx context.Context) ([]models.Crop, error)
	Crop(ctx context.Context, id int64) (*models.Crop, error)
}

// ReportRepository defines the interface for report data operations.
// Create and Update enforce the daily hours cap inside the write statement
// and return a *models.CapError when it would be exceeded.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	Update(ctx context.Context, report *models.Report) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Report, error)
	SumHours(ctx context.Context, userID int64, date time.Time, excludeID int64) (int, error)
	Recent(ctx context.Context, userID int64, since time.Time) ([]*models.Report, error)
	Count(ctx context.Context) (int, error)
	StreamAll(ctx context.Context, callback func(*models.Report) error) error
}

// MirrorRepository defines the interface for sink row bookkeeping
type MirrorRepository interface {
	All(ctx context.Context) ([]*models.MirrorEntry, error)
	Create(ctx context.Context, entry *models.MirrorEntry) error
	Touch(ctx context.Context, reportID int64, at time.Time) error
	// Remove drops the entry and moves every later row of the same object up by one
	Remove(ctx context.Context, entry *models.MirrorEntry) error
}

// SinkRepository defines the interface for monthly sink records
type SinkRepository interface {
	Get(ctx context.Context, period models.Period) (*models.MonthlySink, error)
	Create(ctx context.Context, sink *models.MonthlySink) error
	List(ctx context.Context) ([]*models.MonthlySink, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	User      UserRepository
	Reference ReferenceRepository
	Report    ReportRepository
	Mirror    MirrorRepository
	Sink      SinkRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		User:      NewUserRepo(db),
		Reference: NewReferenceRepo(db),
		Report:    NewReportRepo(db),
		Mirror:    NewMirrorRepo(db),
		Sink:      NewSinkRepo(db),
	}
}

// helper to convert empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// helper to convert zero to NULL
func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func dateString(t time.Time) string {
	return t.Format(models.DateLayout)
}
