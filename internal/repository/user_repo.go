package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/field-worklog-bot/internal/database"
	"github.com/field-worklog-bot/internal/models"
)

// userRepo is the concrete implementation of UserRepository
type userRepo struct {
	db *database.DB
}

// NewUserRepo creates a new user repository
func NewUserRepo(db *database.DB) UserRepository {
	return &userRepo{db: db}
}

// Upsert inserts or refreshes a user's profile; an empty timezone keeps the stored one
func (r *userRepo) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, display_name, handle, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			handle = EXCLUDED.handle,
			timezone = COALESCE(NULLIF(EXCLUDED.timezone, ''), users.timezone),
			updated_at = EXCLUDED.updated_at
		RETURNING timezone, created_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.DisplayName, user.Handle, user.Timezone, now,
	).Scan(&user.Timezone, &user.CreatedAt)
	if err != nil {
		return err
	}
	user.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, display_name, handle, timezone, created_at, updated_at FROM users WHERE id = $1`

	var user models.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.DisplayName, &user.Handle, &user.Timezone,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// AssignedRole returns the role from the assignable-role table, if any
func (r *userRepo) AssignedRole(ctx context.Context, id int64) (models.Role, bool, error) {
	var role string
	err := r.db.QueryRowContext(ctx, "SELECT role FROM user_roles WHERE user_id = $1", id).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return models.Role(role), true, nil
}

// IsBrigadier checks the brigade roster
func (r *userRepo) IsBrigadier(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM brigades WHERE brigadier_id = $1)", id).Scan(&exists)
	return exists, err
}
