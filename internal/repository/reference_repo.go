package repository

import (
	"context"
	"database/sql"

	"github.com/field-worklog-bot/internal/database"
	"github.com/field-worklog-bot/internal/models"
)

// referenceRepo is the concrete implementation of ReferenceRepository
type referenceRepo struct {
	db *database.DB
}

// NewReferenceRepo creates a new reference list repository
func NewReferenceRepo(db *database.DB) ReferenceRepository {
	return &referenceRepo{db: db}
}

func (r *referenceRepo) Locations(ctx context.Context) ([]models.Location, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, group_name FROM locations ORDER BY group_name, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Group); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *referenceRepo) Location(ctx context.Context, id int64) (*models.Location, error) {
	var l models.Location
	err := r.db.QueryRowContext(ctx, "SELECT id, name, group_name FROM locations WHERE id = $1", id).
		Scan(&l.ID, &l.Name, &l.Group)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Activities lists activities of a work kind; for technique work they are
// narrowed to the given machine kind
func (r *referenceRepo) Activities(ctx context.Context, kind models.WorkKind, machineKindID int64) ([]models.Activity, error) {
	query := `
		SELECT id, name, group_name, work_kind, COALESCE(machine_kind_id, 0)
		FROM activities
		WHERE work_kind = $1 AND ($2 = 0 OR machine_kind_id = $2)
		ORDER BY group_name, name
	`
	rows, err := r.db.QueryContext(ctx, query, string(kind), machineKindID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.Name, &a.Group, &a.Kind, &a.MachineKindID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *referenceRepo) Activity(ctx context.Context, id int64) (*models.Activity, error) {
	var a models.Activity
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, group_name, work_kind, COALESCE(machine_kind_id, 0) FROM activities WHERE id = $1", id).
		Scan(&a.ID, &a.Name, &a.Group, &a.Kind, &a.MachineKindID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *referenceRepo) MachineKinds(ctx context.Context) ([]models.MachineKind, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, is_truck FROM machine_kinds ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MachineKind
	for rows.Next() {
		var k models.MachineKind
		if err := rows.Scan(&k.ID, &k.Name, &k.IsTruck); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *referenceRepo) MachineKind(ctx context.Context, id int64) (*models.MachineKind, error) {
	return r.machineKindWhere(ctx, "id = $1", id)
}

func (r *referenceRepo) MachineKindByName(ctx context.Context, name string) (*models.MachineKind, error) {
	return r.machineKindWhere(ctx, "name = $1", name)
}

func (r *referenceRepo) machineKindWhere(ctx context.Context, cond string, arg interface{}) (*models.MachineKind, error) {
	var k models.MachineKind
	err := r.db.QueryRowContext(ctx, "SELECT id, name, is_truck FROM machine_kinds WHERE "+cond, arg).
		Scan(&k.ID, &k.Name, &k.IsTruck)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *referenceRepo) Machines(ctx context.Context, kindID int64) ([]models.Machine, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, kind_id FROM machines WHERE kind_id = $1 ORDER BY name", kindID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Machine
	for rows.Next() {
		var m models.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.KindID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *referenceRepo) Machine(ctx context.Context, id int64) (*models.Machine, error) {
	var m models.Machine
	err := r.db.QueryRowContext(ctx, "SELECT id, name, kind_id FROM machines WHERE id = $1", id).
		Scan(&m.ID, &m.Name, &m.KindID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *referenceRepo) Crops(ctx context.Context) ([]models.Crop, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM crops ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Crop
	for rows.Next() {
		var c models.Crop
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *referenceRepo) Crop(ctx context.Context, id int64) (*models.Crop, error) {
	var c models.Crop
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM crops WHERE id = $1", id).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
