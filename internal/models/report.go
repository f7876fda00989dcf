package models

import (
	"strconv"
	"time"
)

// MaxDailyHours caps the hours one user may report for a single work date
const MaxDailyHours = 24

// DateLayout is the wire and display layout of work dates
const DateLayout = "2006-01-02"

// Report represents a committed work session
type Report struct {
	ID            int64     `json:"id" db:"id"`
	CreatorID     int64     `json:"creator_id" db:"creator_id" validate:"required"`
	CreatorName   string    `json:"creator_name" db:"creator_name"`
	CreatorHandle string    `json:"creator_handle" db:"creator_handle"`
	Location      string    `json:"location" db:"location" validate:"required,max=200"`
	LocationGroup string    `json:"location_group" db:"location_group"`
	Activity      string    `json:"activity" db:"activity" validate:"required,max=200"`
	ActivityGroup string    `json:"activity_group" db:"activity_group"`
	WorkDate      time.Time `json:"work_date" db:"work_date" validate:"required"`
	Hours         int       `json:"hours" db:"hours" validate:"min=1,max=24"`
	ChatID        int64     `json:"chat_id" db:"chat_id"`
	MachineKind   string    `json:"machine_kind,omitempty" db:"machine_kind"`
	MachineName   string    `json:"machine_name,omitempty" db:"machine_name"`
	Crop          string    `json:"crop,omitempty" db:"crop"`
	TripCount     int       `json:"trip_count,omitempty" db:"trip_count" validate:"min=0,max=100"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// IsTechnique reports whether the report was made for machine work
func (r *Report) IsTechnique() bool {
	return r.MachineKind != ""
}

// IsTruck reports whether the report carries a trip count
func (r *Report) IsTruck() bool {
	return r.TripCount > 0
}

// Period returns the (year, month) partition of the report's work date
func (r *Report) Period() Period {
	return Period{Year: r.WorkDate.Year(), Month: r.WorkDate.Month()}
}

// SheetHeader is the column layout of a monthly sink
var SheetHeader = []string{
	"Report ID", "Work date", "Worker", "Handle", "Location group", "Location",
	"Activity group", "Activity", "Machine kind", "Machine", "Crop", "Trips",
	"Hours", "Created at",
}

// SheetRow renders the report as one sink row in SheetHeader order
func (r *Report) SheetRow() []string {
	trips := ""
	if r.TripCount > 0 {
		trips = strconv.Itoa(r.TripCount)
	}
	handle := ""
	if r.CreatorHandle != "" {
		handle = "@" + r.CreatorHandle
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.WorkDate.Format(DateLayout),
		r.CreatorName,
		handle,
		r.LocationGroup,
		r.Location,
		r.ActivityGroup,
		r.Activity,
		r.MachineKind,
		r.MachineName,
		r.Crop,
		trips,
		strconv.Itoa(r.Hours),
		r.CreatedAt.Format("2006-01-02 15:04"),
	}
}

// Field identifies one editable report field in the edit catalog
type Field int

const (
	FieldDate Field = iota + 1
	FieldHours
	FieldLocation
	FieldActivity
	FieldMachine
	FieldCrop
	FieldTripCount
)

// FieldCatalog lists editable fields in their fixed catalog order
var FieldCatalog = []Field{
	FieldDate, FieldHours, FieldLocation, FieldActivity, FieldMachine, FieldCrop, FieldTripCount,
}

var fieldNames = map[Field]string{
	FieldDate:      "date",
	FieldHours:     "hours",
	FieldLocation:  "location",
	FieldActivity:  "activity",
	FieldMachine:   "machine",
	FieldCrop:      "crop",
	FieldTripCount: "trip count",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "field(" + strconv.Itoa(int(f)) + ")"
}

// AppliesTo reports whether the field can be edited on the given report
func (f Field) AppliesTo(r *Report) bool {
	switch f {
	case FieldMachine:
		return r.IsTechnique()
	case FieldTripCount:
		return r.IsTruck()
	case FieldDate, FieldHours, FieldLocation, FieldActivity, FieldCrop:
		return true
	}
	return false
}

// FieldEdit carries the new value of a single field
type FieldEdit struct {
	Field         Field
	WorkDate      time.Time
	Hours         int
	Location      string
	LocationGroup string
	Activity      string
	ActivityGroup string
	MachineName   string
	Crop          string
	TripCount     int
}

// Apply writes the edit into the report
func (e FieldEdit) Apply(r *Report) {
	switch e.Field {
	case FieldDate:
		r.WorkDate = e.WorkDate
	case FieldHours:
		r.Hours = e.Hours
	case FieldLocation:
		r.Location = e.Location
		r.LocationGroup = e.LocationGroup
	case FieldActivity:
		r.Activity = e.Activity
		r.ActivityGroup = e.ActivityGroup
	case FieldMachine:
		r.MachineName = e.MachineName
	case FieldCrop:
		r.Crop = e.Crop
	case FieldTripCount:
		r.TripCount = e.TripCount
	}
}
