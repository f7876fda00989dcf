// Package roles resolves a user's role from its independent sources.
//
// Sources are consulted in a fixed precedence order and the first one that
// knows the user wins: the static allow-list file, then the assignable-role
// table, then the brigade roster. Users found nowhere are plain workers.
package roles

import (
	"context"
	"fmt"
	"os"

	"github.com/field-worklog-bot/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Source is one place a role can come from
type Source interface {
	Name() string
	Lookup(ctx context.Context, userID int64) (models.Role, bool, error)
}

// Resolver applies sources in precedence order
type Resolver struct {
	sources []Source
	log     zerolog.Logger
}

// NewResolver creates a resolver; sources are consulted in the given order
func NewResolver(log zerolog.Logger, sources ...Source) *Resolver {
	return &Resolver{
		sources: sources,
		log:     log.With().Str("component", "roles").Logger(),
	}
}

// Resolve returns the first role found. A failing source is logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, userID int64) models.Role {
	for _, src := range r.sources {
		role, ok, err := src.Lookup(ctx, userID)
		if err != nil {
			r.log.Warn().Err(err).Str("source", src.Name()).Int64("user_id", userID).Msg("Role source failed")
			continue
		}
		if ok {
			return role
		}
	}
	return models.RolePlain
}

// StaticFile is the layout of the allow-list file
type StaticFile struct {
	Admin []int64 `yaml:"admin"`
	IT    []int64 `yaml:"it"`
}

// StaticSource is the allow-list loaded at startup
type StaticSource struct {
	roles map[int64]models.Role
}

// NewStaticSource builds the allow-list from explicit ids
func NewStaticSource(f StaticFile) *StaticSource {
	s := &StaticSource{roles: make(map[int64]models.Role)}
	for _, id := range f.IT {
		s.roles[id] = models.RoleIT
	}
	// admin wins when an id is listed twice
	for _, id := range f.Admin {
		s.roles[id] = models.RoleAdmin
	}
	return s
}

// LoadStaticSource reads the YAML allow-list; an empty path yields an empty list
func LoadStaticSource(path string) (*StaticSource, error) {
	if path == "" {
		return NewStaticSource(StaticFile{}), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}
	var f StaticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}
	return NewStaticSource(f), nil
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Lookup(ctx context.Context, userID int64) (models.Role, bool, error) {
	role, ok := s.roles[userID]
	return role, ok, nil
}

// RoleTable is the assignable-role store
type RoleTable interface {
	AssignedRole(ctx context.Context, id int64) (models.Role, bool, error)
}

// TableSource reads the assignable-role table
type TableSource struct {
	table RoleTable
}

func NewTableSource(table RoleTable) *TableSource {
	return &TableSource{table: table}
}

func (s *TableSource) Name() string { return "table" }

func (s *TableSource) Lookup(ctx context.Context, userID int64) (models.Role, bool, error) {
	role, ok, err := s.table.AssignedRole(ctx, userID)
	if err != nil || !ok {
		return "", false, err
	}
	if !models.ValidRoles[role] {
		return "", false, fmt.Errorf("unknown role %q in role table", role)
	}
	return role, true, nil
}

// Roster answers whether a user leads a brigade
type Roster interface {
	IsBrigadier(ctx context.Context, id int64) (bool, error)
}

// RosterSource maps brigade leaders to the brigadier role
type RosterSource struct {
	roster Roster
}

func NewRosterSource(roster Roster) *RosterSource {
	return &RosterSource{roster: roster}
}

func (s *RosterSource) Name() string { return "roster" }

func (s *RosterSource) Lookup(ctx context.Context, userID int64) (models.Role, bool, error) {
	ok, err := s.roster.IsBrigadier(ctx, userID)
	if err != nil || !ok {
		return "", false, err
	}
	return models.RoleBrigadier, true, nil
}
