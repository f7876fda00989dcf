// Package dialog implements the conversation that collects work reports.
//
// Each (chat, user) pair has at most one Session. A session sits in one
// State and accumulates a Draft; every inbound event moves it along and
// renders exactly one screen. Back navigation is computed from the draft
// rather than from a history stack, because the same state is reached
// through different branches.
package dialog

import (
	"time"

	"github.com/field-worklog-bot/internal/chat"
	"github.com/field-worklog-bot/internal/models"
)

// State names one screen of the conversation
type State int

const (
	StateStart State = iota
	StatePickDate
	StatePickHours
	StatePickWorkKind
	StatePickTask
	StatePickMachineKind
	StatePickMachine
	StatePickMachineTask
	StatePickLocation
	StatePickCrop
	StatePickTripCount
	StateConfirm
	StateConfirmEdit
	StateMyReports
	StateReportActions
	StateDeleteConfirm
	StateEditSelect
)

var stateNames = map[State]string{
	StateStart:           "start",
	StatePickDate:        "pick-date",
	StatePickHours:       "pick-hours",
	StatePickWorkKind:    "pick-work-kind",
	StatePickTask:        "pick-task",
	StatePickMachineKind: "pick-machine-kind",
	StatePickMachine:     "pick-machine",
	StatePickMachineTask: "pick-machine-task",
	StatePickLocation:    "pick-location",
	StatePickCrop:        "pick-crop",
	StatePickTripCount:   "pick-trip-count",
	StateConfirm:         "confirm",
	StateConfirmEdit:     "confirm-edit",
	StateMyReports:       "my-reports",
	StateReportActions:   "report-actions",
	StateDeleteConfirm:   "delete-confirm",
	StateEditSelect:      "edit-select",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// textStates take free text; every other state takes a button choice
var textStates = map[State]bool{
	StatePickTripCount: true,
	StateEditSelect:    true,
}

// Mode selects how a state hands over once its field is accepted
type Mode int

const (
	// ModeNew walks the report flow forward
	ModeNew Mode = iota
	// ModeConfirmEdit re-collects a field before commit and returns to confirm
	ModeConfirmEdit
	// ModeEditQueue persists one field of a saved report at a time
	ModeEditQueue
)

// Work is the branch-specific part of a draft: *ManualWork, *MachineWork or *TruckWork
type Work interface {
	Kind() models.WorkKind
}

// ManualWork is labor without machinery
type ManualWork struct {
	ActivityID    int64
	Activity      string
	ActivityGroup string
}

func (*ManualWork) Kind() models.WorkKind { return models.WorkManual }

// MachineWork is work done with a machine whose location is picked directly
type MachineWork struct {
	KindID        int64
	KindName      string
	MachineID     int64
	Machine       string
	ActivityID    int64
	Activity      string
	ActivityGroup string
}

func (*MachineWork) Kind() models.WorkKind { return models.WorkTechnique }

// TruckWork is hauling: it adds a trip count, and its location is the loading point
type TruckWork struct {
	MachineWork
	Trips int
}

func (*TruckWork) Kind() models.WorkKind { return models.WorkTechnique }

// machineOf returns the machine part of technique work
func machineOf(w Work) *MachineWork {
	switch v := w.(type) {
	case *MachineWork:
		return v
	case *TruckWork:
		return &v.MachineWork
	}
	return nil
}

// Draft holds the fields collected so far
type Draft struct {
	Date          time.Time
	Hours         int
	Work          Work
	LocationID    int64
	Location      string
	LocationGroup string
	CropChosen    bool
	Crop          string
}

func (d *Draft) isTruck() bool {
	_, ok := d.Work.(*TruckWork)
	return ok
}

// Session is the live conversation of one user in one chat
type Session struct {
	Key   chat.Key
	User  *models.User
	State State
	Mode  Mode
	Draft Draft

	// set while a saved report is inspected or edited
	ReportID int64
	Report   *models.Report
	Queue    []models.Field
	Current  models.Field
	Done     []models.Field

	// Notice is shown above the next screen, then cleared
	Notice string
}

// successor is the next state of the forward flow
func successor(s State, d *Draft) State {
	switch s {
	case StateStart:
		return StatePickDate
	case StatePickDate:
		return StatePickHours
	case StatePickHours:
		return StatePickWorkKind
	case StatePickWorkKind:
		if _, manual := d.Work.(*ManualWork); manual {
			return StatePickTask
		}
		return StatePickMachineKind
	case StatePickTask:
		return StatePickLocation
	case StatePickMachineKind:
		return StatePickMachine
	case StatePickMachine:
		return StatePickMachineTask
	case StatePickMachineTask:
		if d.isTruck() {
			return StatePickCrop
		}
		return StatePickLocation
	case StatePickLocation:
		if d.isTruck() {
			return StateConfirm
		}
		return StatePickCrop
	case StatePickCrop:
		if d.isTruck() {
			return StatePickTripCount
		}
		return StateConfirm
	case StatePickTripCount:
		return StatePickLocation
	}
	return StateConfirm
}

// predecessor is where "back" leads from s, given the branch recorded in d
func predecessor(s State, d *Draft) State {
	switch s {
	case StatePickHours:
		return StatePickDate
	case StatePickWorkKind:
		return StatePickHours
	case StatePickTask, StatePickMachineKind:
		return StatePickWorkKind
	case StatePickMachine:
		return StatePickMachineKind
	case StatePickMachineTask:
		return StatePickMachine
	case StatePickLocation:
		switch d.Work.(type) {
		case *ManualWork:
			return StatePickTask
		case *TruckWork:
			return StatePickTripCount
		}
		return StatePickMachineTask
	case StatePickCrop:
		if d.isTruck() {
			return StatePickMachineTask
		}
		return StatePickLocation
	case StatePickTripCount:
		return StatePickCrop
	case StateConfirm:
		if d.isTruck() {
			return StatePickLocation
		}
		return StatePickCrop
	}
	return StateStart
}

// firstMissing is the earliest state whose field the draft still lacks, or confirm
func firstMissing(d *Draft) State {
	if d.Date.IsZero() {
		return StatePickDate
	}
	if d.Hours == 0 {
		return StatePickHours
	}
	switch w := d.Work.(type) {
	case nil:
		return StatePickWorkKind
	case *ManualWork:
		if w.ActivityID == 0 {
			return StatePickTask
		}
	default:
		mw := machineOf(w)
		if mw.KindID == 0 {
			return StatePickMachineKind
		}
		if mw.MachineID == 0 {
			return StatePickMachine
		}
		if mw.ActivityID == 0 {
			return StatePickMachineTask
		}
	}
	if tw, ok := d.Work.(*TruckWork); ok {
		if !d.CropChosen {
			return StatePickCrop
		}
		if tw.Trips == 0 {
			return StatePickTripCount
		}
		if d.LocationID == 0 {
			return StatePickLocation
		}
		return StateConfirm
	}
	if d.LocationID == 0 {
		return StatePickLocation
	}
	if !d.CropChosen {
		return StatePickCrop
	}
	return StateConfirm
}

// stateFor is the state that collects a catalog field
func stateFor(f models.Field, d *Draft) State {
	switch f {
	case models.FieldDate:
		return StatePickDate
	case models.FieldHours:
		return StatePickHours
	case models.FieldLocation:
		return StatePickLocation
	case models.FieldActivity:
		if _, manual := d.Work.(*ManualWork); manual {
			return StatePickTask
		}
		return StatePickMachineTask
	case models.FieldMachine:
		return StatePickMachine
	case models.FieldCrop:
		return StatePickCrop
	case models.FieldTripCount:
		return StatePickTripCount
	}
	return StateStart
}
