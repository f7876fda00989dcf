package dialog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/obs"
	"github.com/field-worklog-bot/internal/validation"
)

// choicePrefix is the token prefix each button state accepts
var choicePrefix = map[State]string{
	StatePickDate:        "date",
	StatePickHours:       "hours",
	StatePickWorkKind:    "kind",
	StatePickTask:        "task",
	StatePickMachineKind: "mkind",
	StatePickMachine:     "machine",
	StatePickMachineTask: "task",
	StatePickLocation:    "loc",
	StatePickCrop:        "crop",
	StateConfirm:         "confirm",
	StateConfirmEdit:     "field",
	StateMyReports:       "report",
	StateReportActions:   "action",
	StateDeleteConfirm:   "delete",
}

var errUseButtons = &models.ValidationError{Message: "Please use the buttons below."}

func (m *Machine) onMenu(ctx context.Context, s *Session, value string) error {
	switch value {
	case "new":
		s.Mode = ModeNew
		s.State = StatePickDate
	case "mine":
		s.Mode = ModeEditQueue
		s.State = StateMyReports
	case "export":
		return m.export(s)
	default:
		return errUseButtons
	}
	return nil
}

func (m *Machine) onChoice(ctx context.Context, s *Session, prefix, value string) error {
	if want, ok := choicePrefix[s.State]; !ok || want != prefix {
		return errUseButtons
	}
	switch s.State {
	case StatePickDate:
		return m.pickDate(ctx, s, value)
	case StatePickHours:
		return m.pickHours(ctx, s, value)
	case StatePickWorkKind:
		return m.pickWorkKind(ctx, s, value)
	case StatePickTask:
		return m.pickTask(ctx, s, value)
	case StatePickMachineKind:
		return m.pickMachineKind(ctx, s, value)
	case StatePickMachine:
		return m.pickMachine(ctx, s, value)
	case StatePickMachineTask:
		return m.pickMachineTask(ctx, s, value)
	case StatePickLocation:
		return m.pickLocation(ctx, s, value)
	case StatePickCrop:
		return m.pickCrop(ctx, s, value)
	case StateConfirm:
		return m.confirm(ctx, s, value)
	case StateConfirmEdit:
		return m.chooseDraftField(s, value)
	case StateMyReports:
		return m.openReport(ctx, s, value)
	case StateReportActions:
		return m.reportAction(s, value)
	case StateDeleteConfirm:
		return m.deleteReport(ctx, s, value)
	}
	return errUseButtons
}

func (m *Machine) onText(ctx context.Context, s *Session, text string) error {
	switch s.State {
	case StatePickTripCount:
		return m.enterTripCount(ctx, s, text)
	case StateEditSelect:
		return m.beginEdit(ctx, s, text)
	}
	return errUseButtons
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, errUseButtons
	}
	return id, nil
}

func (m *Machine) pickDate(ctx context.Context, s *Session, value string) error {
	date, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return errUseButtons
	}
	offered := false
	for _, d := range m.dateChoices(s.User) {
		if d.Equal(date) {
			offered = true
		}
	}
	if !offered {
		return &models.ValidationError{Field: "date", Message: "please pick one of the offered dates"}
	}

	s.Draft.Date = date
	if s.Mode != ModeEditQueue && s.Draft.Hours > 0 {
		used, err := m.reports.SumHours(ctx, s.User.ID, date, 0)
		if err != nil {
			return err
		}
		if verr := validation.ValidateHours(s.Draft.Hours, used); verr != nil {
			s.Draft.Hours = 0
			s.Notice = fmt.Sprintf("%d hours are already reported for %s, please pick the hours again.", used, formatDate(date))
			if s.Mode == ModeConfirmEdit {
				s.State = StatePickHours
				return nil
			}
		}
	}
	return m.accept(ctx, s)
}

func (m *Machine) pickHours(ctx context.Context, s *Session, value string) error {
	hours, err := strconv.Atoi(value)
	if err != nil {
		return errUseButtons
	}
	used, err := m.reports.SumHours(ctx, s.User.ID, s.Draft.Date, s.ReportID)
	if err != nil {
		return err
	}
	if verr := validation.ValidateHours(hours, used); verr != nil {
		return verr
	}
	s.Draft.Hours = hours
	return m.accept(ctx, s)
}

func (m *Machine) pickWorkKind(ctx context.Context, s *Session, value string) error {
	switch models.WorkKind(value) {
	case models.WorkManual:
		if _, ok := s.Draft.Work.(*ManualWork); !ok {
			s.Draft.Work = &ManualWork{}
		}
	case models.WorkTechnique:
		if machineOf(s.Draft.Work) == nil {
			s.Draft.Work = &MachineWork{}
		}
	default:
		return errUseButtons
	}
	return m.accept(ctx, s)
}

func (m *Machine) pickTask(ctx context.Context, s *Session, value string) error {
	work, ok := s.Draft.Work.(*ManualWork)
	if !ok {
		return errUseButtons
	}
	id, err := parseID(value)
	if err != nil {
		return err
	}
	a, err := m.refs.Activity(ctx, id)
	if err != nil {
		return err
	}
	if a == nil || a.Kind != models.WorkManual {
		return &models.ValidationError{Field: "activity", Message: "please pick one of the listed tasks"}
	}
	work.ActivityID, work.Activity, work.ActivityGroup = a.ID, a.Name, a.Group
	return m.accept(ctx, s)
}

func (m *Machine) pickMachineKind(ctx context.Context, s *Session, value string) error {
	id, err := parseID(value)
	if err != nil {
		return err
	}
	kind, err := m.refs.MachineKind(ctx, id)
	if err != nil {
		return err
	}
	if kind == nil {
		return &models.ValidationError{Field: "machine_kind", Message: "please pick one of the listed machine types"}
	}
	if cur := machineOf(s.Draft.Work); cur == nil || cur.KindID != kind.ID {
		base := MachineWork{KindID: kind.ID, KindName: kind.Name}
		if kind.IsTruck {
			s.Draft.Work = &TruckWork{MachineWork: base}
		} else {
			s.Draft.Work = &base
		}
	}
	return m.accept(ctx, s)
}

func (m *Machine) pickMachine(ctx context.Context, s *Session, value string) error {
	work := machineOf(s.Draft.Work)
	if work == nil {
		return errUseButtons
	}
	id, err := parseID(value)
	if err != nil {
		return err
	}
	mc, err := m.refs.Machine(ctx, id)
	if err != nil {
		return err
	}
	if mc == nil || mc.KindID != work.KindID {
		return &models.ValidationError{Field: "machine", Message: "please pick one of the listed machines"}
	}
	work.MachineID, work.Machine = mc.ID, mc.Name
	return m.accept(ctx, s)
}

func (m *Machine) pickMachineTask(ctx context.Context, s *Session, value string) error {
	work := machineOf(s.Draft.Work)
	if work == nil {
		return errUseButtons
	}
	id, err := parseID(value)
	if err != nil {
		return err
	}
	a, err := m.refs.Activity(ctx, id)
	if err != nil {
		return err
	}
	if a == nil || a.Kind != models.WorkTechnique || a.MachineKindID != work.KindID {
		return &models.ValidationError{Field: "activity", Message: "please pick one of the listed tasks"}
	}
	work.ActivityID, work.Activity, work.ActivityGroup = a.ID, a.Name, a.Group
	return m.accept(ctx, s)
}

func (m *Machine) pickLocation(ctx context.Context, s *Session, value string) error {
	id, err := parseID(value)
	if err != nil {
		return err
	}
	loc, err := m.refs.Location(ctx, id)
	if err != nil {
		return err
	}
	if loc == nil {
		return &models.ValidationError{Field: "location", Message: "please pick one of the listed locations"}
	}
	s.Draft.LocationID, s.Draft.Location, s.Draft.LocationGroup = loc.ID, loc.Name, loc.Group
	return m.accept(ctx, s)
}

func (m *Machine) pickCrop(ctx context.Context, s *Session, value string) error {
	if value == "none" {
		s.Draft.CropChosen, s.Draft.Crop = true, ""
		return m.accept(ctx, s)
	}
	id, err := parseID(value)
	if err != nil {
		return err
	}
	crop, err := m.refs.Crop(ctx, id)
	if err != nil {
		return err
	}
	if crop == nil {
		return &models.ValidationError{Field: "crop", Message: "please pick one of the listed crops"}
	}
	s.Draft.CropChosen, s.Draft.Crop = true, crop.Name
	return m.accept(ctx, s)
}

func (m *Machine) enterTripCount(ctx context.Context, s *Session, text string) error {
	work, ok := s.Draft.Work.(*TruckWork)
	if !ok {
		return errUseButtons
	}
	n, verr := validation.ParseTripCount(text)
	if verr != nil {
		return verr
	}
	work.Trips = n
	return m.accept(ctx, s)
}

func (m *Machine) confirm(ctx context.Context, s *Session, value string) error {
	switch value {
	case "save":
		return m.save(ctx, s)
	case "edit":
		s.Mode = ModeConfirmEdit
		s.State = StateConfirmEdit
		return nil
	}
	return errUseButtons
}

// chooseDraftField picks which field of the uncommitted draft to collect again
func (m *Machine) chooseDraftField(s *Session, value string) error {
	if value == "kind" {
		s.State = StatePickWorkKind
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return errUseButtons
	}
	f := models.Field(n)
	if !draftHasField(&s.Draft, f) {
		return errUseButtons
	}
	s.State = stateFor(f, &s.Draft)
	return nil
}

// draftHasField reports whether f is part of the draft's branch
func draftHasField(d *Draft, f models.Field) bool {
	switch f {
	case models.FieldMachine:
		return machineOf(d.Work) != nil
	case models.FieldTripCount:
		return d.isTruck()
	case models.FieldDate, models.FieldHours, models.FieldLocation, models.FieldActivity, models.FieldCrop:
		return true
	}
	return false
}

// save commits the draft. A cap violation found at commit time sends the
// user back to the hours step with the remaining allowance.
func (m *Machine) save(ctx context.Context, s *Session) error {
	if missing := firstMissing(&s.Draft); missing != StateConfirm {
		s.Mode = ModeConfirmEdit
		s.State = missing
		return &models.ValidationError{Message: "some answers are missing"}
	}

	report := s.Draft.report(s.User, s.Key.ChatID)
	err := m.reports.Create(ctx, report)
	var capErr *models.CapError
	if errors.As(err, &capErr) {
		s.Draft.Hours = 0
		s.Mode = ModeConfirmEdit
		s.State = StatePickHours
		s.Notice = fmt.Sprintf("%d hours are already reported for %s, pick at most %d.",
			models.MaxDailyHours-capErr.Remaining, formatDate(report.WorkDate), capErr.Remaining)
		return nil
	}
	if err != nil {
		return err
	}

	obs.ReportSaved()
	m.notifier.ReportSaved(ctx, report)
	m.finish(s, fmt.Sprintf("Report #%d saved. Thank you!", report.ID))
	return nil
}

// export starts a manual sync run; its result arrives as a separate message
func (m *Machine) export(s *Session) error {
	if !s.User.Role.CanExport() {
		return &models.ValidationError{Message: "only administrators can start an export"}
	}
	key, user := s.Key, s.User
	m.deferred = append(m.deferred, func() {
		ctx := context.Background()
		res, err := m.sync.Run(ctx)
		// the result becomes the live message, with the menu to carry on from
		msg := m.startScreen(&Session{Key: key, User: user, Notice: exportText(res, err)})
		if _, sendErr := m.renderer.SendNew(ctx, key, msg); sendErr != nil {
			m.log.Error().Err(sendErr).Str("key", key.String()).Msg("Failed to deliver export result")
		}
	})
	s.Notice = "Export started, the result will follow in a separate message."
	return nil
}

func exportText(res *models.SyncResult, err error) string {
	switch {
	case errors.Is(err, models.ErrSyncInProgress):
		return "An export is already running, try again in a minute."
	case err != nil:
		return "Export failed: " + err.Error()
	}
	return "Export finished: " + res.Summary() + "."
}

// report builds the report a complete draft describes
func (d *Draft) report(u *models.User, chatID int64) *models.Report {
	r := &models.Report{
		CreatorID:     u.ID,
		CreatorName:   u.DisplayName,
		CreatorHandle: u.Handle,
		ChatID:        chatID,
		WorkDate:      d.Date,
		Hours:         d.Hours,
		Location:      d.Location,
		LocationGroup: d.LocationGroup,
		Crop:          d.Crop,
	}
	switch w := d.Work.(type) {
	case *ManualWork:
		r.Activity, r.ActivityGroup = w.Activity, w.ActivityGroup
	case *MachineWork:
		w.fill(r)
	case *TruckWork:
		w.fill(r)
		r.TripCount = w.Trips
	}
	return r
}

func (w *MachineWork) fill(r *models.Report) {
	r.Activity, r.ActivityGroup = w.Activity, w.ActivityGroup
	r.MachineKind, r.MachineName = w.KindName, w.Machine
}
