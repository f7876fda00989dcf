package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/field-worklog-bot/internal/database"
	"github.com/field-worklog-bot/internal/models"
)

// mirrorRepo is the concrete implementation of MirrorRepository
type mirrorRepo struct {
	db *database.DB
}

// NewMirrorRepo creates a new mirror-state repository
func NewMirrorRepo(db *database.DB) MirrorRepository {
	return &mirrorRepo{db: db}
}

// All returns every mirror entry ordered by object and row
func (r *mirrorRepo) All(ctx context.Context) ([]*models.MirrorEntry, error) {
	query := `
		SELECT report_id, object_id, row_number, first_synced_at, last_synced_at
		FROM mirror_entries ORDER BY object_id, row_number
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.MirrorEntry
	for rows.Next() {
		var e models.MirrorEntry
		if err := rows.Scan(&e.ReportID, &e.ObjectID, &e.RowNumber, &e.FirstSyncedAt, &e.LastSyncedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Create records the first export of a report
func (r *mirrorRepo) Create(ctx context.Context, entry *models.MirrorEntry) error {
	query := `
		INSERT INTO mirror_entries (report_id, object_id, row_number, first_synced_at, last_synced_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ReportID, entry.ObjectID, entry.RowNumber, entry.FirstSyncedAt, entry.LastSyncedAt,
	)
	return err
}

// Touch refreshes last-synced-at after an in-place update
func (r *mirrorRepo) Touch(ctx context.Context, reportID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE mirror_entries SET last_synced_at = $1 WHERE report_id = $2", at, reportID)
	return err
}

// Remove drops the entry and shifts the rows below it within one transaction
func (r *mirrorRepo) Remove(ctx context.Context, entry *models.MirrorEntry) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM mirror_entries WHERE report_id = $1", entry.ReportID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE mirror_entries SET row_number = row_number - 1 WHERE object_id = $1 AND row_number > $2",
			entry.ObjectID, entry.RowNumber,
		)
		return err
	})
}
