package models

import (
	"time"
)

// Role is the resolved access level of a user
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleIT        Role = "it"
	RoleTim       Role = "tim"
	RoleBrigadier Role = "brigadier"
	RolePlain     Role = "plain"
)

// ValidRoles defines roles that may be stored in the assignable-role table
var ValidRoles = map[Role]bool{
	RoleAdmin:     true,
	RoleIT:        true,
	RoleTim:       true,
	RoleBrigadier: true,
}

// CanExport reports whether the role may trigger a manual export
func (r Role) CanExport() bool {
	return r == RoleAdmin || r == RoleIT
}

// User represents a chat user known to the bot
type User struct {
	ID          int64     `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Handle      string    `json:"handle" db:"handle"`
	Timezone    string    `json:"timezone" db:"timezone"`
	Role        Role      `json:"role" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Location returns the user's timezone, falling back to def when unset or unknown
func (u *User) Location(def *time.Location) *time.Location {
	if u == nil || u.Timezone == "" {
		return def
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return def
	}
	return loc
}
