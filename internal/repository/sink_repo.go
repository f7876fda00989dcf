package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/field-worklog-bot/internal/database"
	"github.com/field-worklog-bot/internal/models"
)

// sinkRepo is the concrete implementation of SinkRepository
type sinkRepo struct {
	db *database.DB
}

// NewSinkRepo creates a new monthly sink repository
func NewSinkRepo(db *database.DB) SinkRepository {
	return &sinkRepo{db: db}
}

// Get retrieves the sink of a month
func (r *sinkRepo) Get(ctx context.Context, period models.Period) (*models.MonthlySink, error) {
	query := `SELECT year, month, object_id, url, created_at FROM monthly_sinks WHERE year = $1 AND month = $2`

	var s models.MonthlySink
	var month int
	err := r.db.QueryRowContext(ctx, query, period.Year, int(period.Month)).
		Scan(&s.Year, &month, &s.ObjectID, &s.URL, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Month = time.Month(month)
	return &s, nil
}

// Create records a new monthly sink
func (r *sinkRepo) Create(ctx context.Context, sink *models.MonthlySink) error {
	if sink.CreatedAt.IsZero() {
		sink.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO monthly_sinks (year, month, object_id, url, created_at) VALUES ($1, $2, $3, $4, $5)",
		sink.Year, int(sink.Month), sink.ObjectID, sink.URL, sink.CreatedAt,
	)
	return err
}

// List returns all sinks, newest month first
func (r *sinkRepo) List(ctx context.Context) ([]*models.MonthlySink, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT year, month, object_id, url, created_at FROM monthly_sinks ORDER BY year DESC, month DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.MonthlySink
	for rows.Next() {
		var s models.MonthlySink
		var month int
		if err := rows.Scan(&s.Year, &month, &s.ObjectID, &s.URL, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Month = time.Month(month)
		out = append(out, &s)
	}
	return out, rows.Err()
}
