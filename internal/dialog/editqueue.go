package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/validation"
)

// The edit queue changes a committed report one field at a time. Every
// accepted field is persisted on its own, so leaving half-way keeps what
// was already saved.

func (m *Machine) openReport(ctx context.Context, s *Session, value string) error {
	id, err := parseID(value)
	if err != nil {
		return err
	}
	r, err := m.reports.Owned(ctx, s.User.ID, id)
	if err != nil {
		return err
	}
	s.ReportID, s.Report = r.ID, r
	s.State = StateReportActions
	return nil
}

func (m *Machine) reportAction(s *Session, value string) error {
	switch value {
	case "edit":
		s.Queue, s.Done = nil, nil
		s.State = StateEditSelect
	case "delete":
		s.State = StateDeleteConfirm
	default:
		return errUseButtons
	}
	return nil
}

func (m *Machine) deleteReport(ctx context.Context, s *Session, value string) error {
	if value != "yes" {
		return errUseButtons
	}
	if err := m.reports.Delete(ctx, s.User.ID, s.ReportID); err != nil {
		return err
	}
	m.notifier.ReportDeleted(ctx, s.Report)
	m.finish(s, fmt.Sprintf("Report #%d deleted.", s.ReportID))
	return nil
}

// beginEdit parses the requested field numbers and starts the queue
func (m *Machine) beginEdit(ctx context.Context, s *Session, text string) error {
	fields, rejected := validation.ParseFieldList(text, s.Report)
	if len(fields) == 0 {
		msg := "send the numbers of the fields to change, for example 1, 4"
		if len(rejected) > 0 {
			msg = fmt.Sprintf("%s can't be changed on this report; %s", strings.Join(rejected, ", "), msg)
		}
		return &models.ValidationError{Field: "fields", Message: msg}
	}
	s.Queue, s.Done = fields, nil
	if err := m.nextQueued(ctx, s); err != nil {
		return err
	}
	if len(rejected) > 0 && s.Notice == "" {
		s.Notice = "Ignored: " + strings.Join(rejected, ", ") + "."
	}
	return nil
}

// nextQueued opens the prompt of the next queued field, or ends the edit
func (m *Machine) nextQueued(ctx context.Context, s *Session) error {
	if len(s.Queue) == 0 {
		m.finish(s, fmt.Sprintf("Report #%d updated: %s.", s.ReportID, joinFields(s.Done)))
		return nil
	}
	r, err := m.reports.Owned(ctx, s.User.ID, s.ReportID)
	if err != nil {
		return err
	}
	s.Report = r
	s.Current, s.Queue = s.Queue[0], s.Queue[1:]
	if s.Draft, err = m.draftFromReport(ctx, r); err != nil {
		return err
	}
	s.State = stateFor(s.Current, &s.Draft)
	return nil
}

// commitField persists the current field from the draft and moves on
func (m *Machine) commitField(ctx context.Context, s *Session) error {
	updated, err := m.reports.ApplyEdit(ctx, s.User.ID, s.ReportID, s.Draft.edit(s.Current))
	var capErr *models.CapError
	if errors.As(err, &capErr) {
		used := models.MaxDailyHours - capErr.Remaining
		if s.Current == models.FieldDate {
			s.Notice = fmt.Sprintf("The report's %d hours don't fit on %s: %d hours are already reported there.",
				s.Report.Hours, formatDate(s.Draft.Date), used)
		} else {
			s.Notice = fmt.Sprintf("%d hours already reported for this date, pick at most %d.", used, capErr.Remaining)
		}
		s.Draft, err = m.draftFromReport(ctx, s.Report)
		return err
	}
	if err != nil {
		return err
	}

	s.Report = updated
	s.Done = append(s.Done, s.Current)
	m.notifier.ReportChanged(ctx, updated, s.Current)
	return m.nextQueued(ctx, s)
}

// draftFromReport loads a committed report into a draft so field prompts
// can be reused for editing
func (m *Machine) draftFromReport(ctx context.Context, r *models.Report) (Draft, error) {
	d := Draft{
		Date:          r.WorkDate,
		Hours:         r.Hours,
		Location:      r.Location,
		LocationGroup: r.LocationGroup,
		CropChosen:    true,
		Crop:          r.Crop,
	}
	if !r.IsTechnique() {
		d.Work = &ManualWork{Activity: r.Activity, ActivityGroup: r.ActivityGroup}
		return d, nil
	}

	kind, err := m.refs.MachineKindByName(ctx, r.MachineKind)
	if err != nil {
		return d, err
	}
	mw := MachineWork{
		KindName:      r.MachineKind,
		Machine:       r.MachineName,
		Activity:      r.Activity,
		ActivityGroup: r.ActivityGroup,
	}
	if kind != nil {
		mw.KindID = kind.ID
	}
	if r.IsTruck() {
		d.Work = &TruckWork{MachineWork: mw, Trips: r.TripCount}
	} else {
		d.Work = &mw
	}
	return d, nil
}

// edit extracts the value of one field from the draft
func (d *Draft) edit(f models.Field) models.FieldEdit {
	e := models.FieldEdit{
		Field:         f,
		WorkDate:      d.Date,
		Hours:         d.Hours,
		Location:      d.Location,
		LocationGroup: d.LocationGroup,
		Crop:          d.Crop,
	}
	switch w := d.Work.(type) {
	case *ManualWork:
		e.Activity, e.ActivityGroup = w.Activity, w.ActivityGroup
	case *MachineWork:
		e.Activity, e.ActivityGroup, e.MachineName = w.Activity, w.ActivityGroup, w.Machine
	case *TruckWork:
		e.Activity, e.ActivityGroup, e.MachineName = w.Activity, w.ActivityGroup, w.Machine
		e.TripCount = w.Trips
	}
	return e
}
