package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/field-worklog-bot/internal/database"
	"github.com/field-worklog-bot/internal/models"
)

// reportRepo is the concrete implementation of ReportRepository
type reportRepo struct {
	db *database.DB
}

// NewReportRepo creates a new report repository
func NewReportRepo(db *database.DB) ReportRepository {
	return &reportRepo{db: db}
}

const reportColumns = `id, creator_id, creator_name, creator_handle, location, location_group,
	activity, activity_group, work_date, hours, chat_id, machine_kind, machine_name,
	crop, trip_count, created_at, updated_at`

// Create inserts a report if the creator's daily total stays within the cap
func (r *reportRepo) Create(ctx context.Context, report *models.Report) error {
	query := `
		INSERT INTO reports (creator_id, creator_name, creator_handle, location, location_group,
			activity, activity_group, work_date, hours, chat_id, machine_kind, machine_name,
			crop, trip_count, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8::date, $9, $10, $11, $12, $13, $14, $15, $15
		WHERE (SELECT COALESCE(SUM(hours), 0) FROM reports
			WHERE creator_id = $1 AND work_date = $8::date) + $9 <= $16
		RETURNING id
	`
	now := time.Now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}

	err := r.db.QueryRowContext(ctx, query,
		report.CreatorID, report.CreatorName, report.CreatorHandle, report.Location, report.LocationGroup,
		report.Activity, report.ActivityGroup, dateString(report.WorkDate), report.Hours, report.ChatID,
		nullString(report.MachineKind), nullString(report.MachineName), nullString(report.Crop),
		nullInt(report.TripCount), report.CreatedAt, models.MaxDailyHours,
	).Scan(&report.ID)
	if err == sql.ErrNoRows {
		return r.capError(ctx, report.CreatorID, report.WorkDate, 0)
	}
	if err != nil {
		return err
	}

	report.UpdatedAt = report.CreatedAt
	return nil
}

// Update rewrites all mutable fields, re-checking the cap without the report itself
func (r *reportRepo) Update(ctx context.Context, report *models.Report) error {
	query := `
		UPDATE reports SET
			location = $2, location_group = $3, activity = $4, activity_group = $5,
			work_date = $6::date, hours = $7, machine_name = $8, crop = $9, trip_count = $10,
			updated_at = $11
		WHERE id = $1
			AND (SELECT COALESCE(SUM(hours), 0) FROM reports
				WHERE creator_id = $12 AND work_date = $6::date AND id <> $1) + $7 <= $13
	`
	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		report.ID, report.Location, report.LocationGroup, report.Activity, report.ActivityGroup,
		dateString(report.WorkDate), report.Hours, nullString(report.MachineName),
		nullString(report.Crop), nullInt(report.TripCount), now,
		report.CreatorID, models.MaxDailyHours,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM reports WHERE id = $1)", report.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrReportNotFound
		}
		return r.capError(ctx, report.CreatorID, report.WorkDate, report.ID)
	}

	report.UpdatedAt = now
	return nil
}

func (r *reportRepo) capError(ctx context.Context, userID int64, date time.Time, excludeID int64) error {
	sum, err := r.SumHours(ctx, userID, date, excludeID)
	if err != nil {
		return err
	}
	remaining := models.MaxDailyHours - sum
	if remaining < 0 {
		remaining = 0
	}
	return &models.CapError{Remaining: remaining}
}

// Delete removes a report
func (r *reportRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM reports WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrReportNotFound
	}
	return nil
}

// GetByID retrieves a report by ID
func (r *reportRepo) GetByID(ctx context.Context, id int64) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	report, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

// SumHours returns the hours a user logged on a date, optionally excluding one report
func (r *reportRepo) SumHours(ctx context.Context, userID int64, date time.Time, excludeID int64) (int, error) {
	query := `
		SELECT COALESCE(SUM(hours), 0) FROM reports
		WHERE creator_id = $1 AND work_date = $2::date AND id <> $3
	`
	var sum int
	err := r.db.QueryRowContext(ctx, query, userID, dateString(date), excludeID).Scan(&sum)
	return sum, err
}

// Recent lists a user's reports created since the given time, newest first
func (r *reportRepo) Recent(ctx context.Context, userID int64, since time.Time) ([]*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports
		WHERE creator_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// Count returns the total number of reports
func (r *reportRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&count)
	return count, err
}

// StreamAll streams all reports ordered by work date then id (memory efficient)
func (r *reportRepo) StreamAll(ctx context.Context, callback func(*models.Report) error) error {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY work_date, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return err
		}
		if err := callback(report); err != nil {
			return err
		}
	}

	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var report models.Report
	var machineKind, machineName, crop sql.NullString
	var tripCount sql.NullInt64

	err := row.Scan(
		&report.ID, &report.CreatorID, &report.CreatorName, &report.CreatorHandle,
		&report.Location, &report.LocationGroup, &report.Activity, &report.ActivityGroup,
		&report.WorkDate, &report.Hours, &report.ChatID, &machineKind, &machineName,
		&crop, &tripCount, &report.CreatedAt, &report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	report.MachineKind = machineKind.String
	report.MachineName = machineName.String
	report.Crop = crop.String
	report.TripCount = int(tripCount.Int64)
	return &report, nil
}
