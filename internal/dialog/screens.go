package dialog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/field-worklog-bot/internal/chat"
	"github.com/field-worklog-bot/internal/models"
)

const displayDate = "02.01.2006"

func formatDate(t time.Time) string {
	return t.Format(displayDate)
}

// screen builds the message for the session's current state
func (m *Machine) screen(ctx context.Context, s *Session) (chat.Message, error) {
	var (
		text string
		kb   [][]chat.Button
		err  error
	)
	switch s.State {
	case StateStart:
		return m.startScreen(s), nil
	case StatePickDate:
		text, kb = m.dateScreen(s)
	case StatePickHours:
		text, kb, err = m.hoursScreen(ctx, s)
	case StatePickWorkKind:
		text = "What kind of work was it?"
		kb = [][]chat.Button{{
			{Label: "Manual work", Token: "kind:" + string(models.WorkManual)},
			{Label: "Machine work", Token: "kind:" + string(models.WorkTechnique)},
		}}
	case StatePickTask:
		text, kb, err = m.activityScreen(ctx, models.WorkManual, 0)
	case StatePickMachineKind:
		text, kb, err = m.machineKindScreen(ctx)
	case StatePickMachine:
		text, kb, err = m.machineScreen(ctx, s)
	case StatePickMachineTask:
		var kindID int64
		if w := machineOf(s.Draft.Work); w != nil {
			kindID = w.KindID
		}
		text, kb, err = m.activityScreen(ctx, models.WorkTechnique, kindID)
	case StatePickLocation:
		text, kb, err = m.locationScreen(ctx, s)
	case StatePickCrop:
		text, kb, err = m.cropScreen(ctx)
	case StatePickTripCount:
		text = fmt.Sprintf("How many trips did you make? Send a number from 1 to %d.", models.MaxTripCount)
	case StateConfirm:
		text = "Please check your report:\n\n" + describe(s.Draft.report(s.User, s.Key.ChatID))
		kb = [][]chat.Button{{{Label: "Save", Token: "confirm:save"}, {Label: "Edit", Token: "confirm:edit"}}}
	case StateConfirmEdit:
		text, kb = confirmEditScreen(&s.Draft)
	case StateMyReports:
		text, kb, err = m.myReportsScreen(ctx, s)
	case StateReportActions:
		text = describe(s.Report)
		kb = [][]chat.Button{{{Label: "Edit fields", Token: "action:edit"}, {Label: "Delete", Token: "action:delete"}}}
	case StateDeleteConfirm:
		text = fmt.Sprintf("Delete report #%d? This can't be undone.", s.ReportID)
		kb = [][]chat.Button{{{Label: "Yes, delete", Token: "delete:yes"}}}
	case StateEditSelect:
		text = editSelectScreen(s.Report)
	}
	if err != nil {
		return chat.Message{}, err
	}

	if s.Mode == ModeEditQueue && s.Current != 0 && isFieldState(s.State) {
		text = fmt.Sprintf("Report #%d, new %s.\n%s", s.ReportID, s.Current, text)
	}
	if s.Notice != "" {
		text = s.Notice + "\n\n" + text
	}
	kb = append(kb, []chat.Button{{Label: "« Back", Token: TokenBack}, {Label: "Cancel", Token: TokenCancel}})
	return chat.Message{Text: text, Keyboard: kb}, nil
}

func isFieldState(st State) bool {
	return st >= StatePickDate && st <= StatePickTripCount
}

func (m *Machine) startScreen(s *Session) chat.Message {
	name := "there"
	if s.User != nil && s.User.DisplayName != "" {
		name = s.User.DisplayName
	}
	text := fmt.Sprintf("Hi, %s! What would you like to do?", name)
	if s.Notice != "" {
		text = s.Notice + "\n\n" + text
	}
	kb := [][]chat.Button{
		{{Label: "Report work", Token: "menu:new"}},
		{{Label: "My reports", Token: "menu:mine"}},
	}
	if s.User != nil && s.User.Role.CanExport() {
		kb = append(kb, []chat.Button{{Label: "Export now", Token: "menu:export"}})
	}
	return chat.Message{Text: text, Keyboard: kb}
}

func (m *Machine) dateScreen(s *Session) (string, [][]chat.Button) {
	labels := []string{"Today", "Yesterday", "Day before"}
	var row []chat.Button
	for i, d := range m.dateChoices(s.User) {
		row = append(row, chat.Button{
			Label: labels[i] + ", " + d.Format("02.01"),
			Token: "date:" + d.Format(models.DateLayout),
		})
	}
	return "Which day did you work?", [][]chat.Button{row}
}

func (m *Machine) hoursScreen(ctx context.Context, s *Session) (string, [][]chat.Button, error) {
	used, err := m.reports.SumHours(ctx, s.User.ID, s.Draft.Date, s.ReportID)
	if err != nil {
		return "", nil, err
	}
	remaining := models.MaxDailyHours - used
	if remaining <= 0 {
		return fmt.Sprintf("%s is already fully reported. Go back and pick another date.", formatDate(s.Draft.Date)), nil, nil
	}

	text := fmt.Sprintf("How many hours did you work on %s?", formatDate(s.Draft.Date))
	if used > 0 {
		text += fmt.Sprintf(" %d hours are already reported, at most %d left.", used, remaining)
	}
	buttons := make([]chat.Button, 0, remaining)
	for h := 1; h <= remaining; h++ {
		buttons = append(buttons, chat.Button{Label: strconv.Itoa(h), Token: "hours:" + strconv.Itoa(h)})
	}
	return text, grid(buttons, 6), nil
}

func (m *Machine) activityScreen(ctx context.Context, kind models.WorkKind, kindID int64) (string, [][]chat.Button, error) {
	acts, err := m.refs.Activities(ctx, kind, kindID)
	if err != nil {
		return "", nil, err
	}
	buttons := make([]chat.Button, len(acts))
	for i, a := range acts {
		buttons[i] = chat.Button{Label: a.Name, Token: "task:" + strconv.FormatInt(a.ID, 10)}
	}
	return "What did you do?", grid(buttons, 2), nil
}

func (m *Machine) machineKindScreen(ctx context.Context) (string, [][]chat.Button, error) {
	kinds, err := m.refs.MachineKinds(ctx)
	if err != nil {
		return "", nil, err
	}
	buttons := make([]chat.Button, len(kinds))
	for i, k := range kinds {
		buttons[i] = chat.Button{Label: k.Name, Token: "mkind:" + strconv.FormatInt(k.ID, 10)}
	}
	return "Which type of machine?", grid(buttons, 2), nil
}

func (m *Machine) machineScreen(ctx context.Context, s *Session) (string, [][]chat.Button, error) {
	var kindID int64
	if w := machineOf(s.Draft.Work); w != nil {
		kindID = w.KindID
	}
	machines, err := m.refs.Machines(ctx, kindID)
	if err != nil {
		return "", nil, err
	}
	buttons := make([]chat.Button, len(machines))
	for i, mc := range machines {
		buttons[i] = chat.Button{Label: mc.Name, Token: "machine:" + strconv.FormatInt(mc.ID, 10)}
	}
	return "Which machine?", grid(buttons, 2), nil
}

func (m *Machine) locationScreen(ctx context.Context, s *Session) (string, [][]chat.Button, error) {
	locs, err := m.refs.Locations(ctx)
	if err != nil {
		return "", nil, err
	}
	buttons := make([]chat.Button, len(locs))
	for i, l := range locs {
		buttons[i] = chat.Button{Label: l.Name, Token: "loc:" + strconv.FormatInt(l.ID, 10)}
	}
	text := "Where did you work?"
	if s.Draft.isTruck() {
		text = "Where did you load?"
	}
	return text, grid(buttons, 2), nil
}

func (m *Machine) cropScreen(ctx context.Context) (string, [][]chat.Button, error) {
	crops, err := m.refs.Crops(ctx)
	if err != nil {
		return "", nil, err
	}
	buttons := make([]chat.Button, 0, len(crops)+1)
	for _, c := range crops {
		buttons = append(buttons, chat.Button{Label: c.Name, Token: "crop:" + strconv.FormatInt(c.ID, 10)})
	}
	buttons = append(buttons, chat.Button{Label: "No crop", Token: "crop:none"})
	return "Which crop?", grid(buttons, 2), nil
}

func confirmEditScreen(d *Draft) (string, [][]chat.Button) {
	buttons := []chat.Button{{Label: "Work type", Token: "field:kind"}}
	for _, f := range models.FieldCatalog {
		if draftHasField(d, f) {
			buttons = append(buttons, chat.Button{Label: capitalize(f.String()), Token: "field:" + strconv.Itoa(int(f))})
		}
	}
	return "What do you want to change?", grid(buttons, 2)
}

func (m *Machine) myReportsScreen(ctx context.Context, s *Session) (string, [][]chat.Button, error) {
	recent, err := m.reports.Recent(ctx, s.User.ID)
	if err != nil {
		return "", nil, err
	}
	if len(recent) == 0 {
		return "You have no reports that can still be changed.", nil, nil
	}
	kb := make([][]chat.Button, len(recent))
	for i, r := range recent {
		label := fmt.Sprintf("#%d %s %dh %s", r.ID, r.WorkDate.Format("02.01"), r.Hours, r.Activity)
		kb[i] = []chat.Button{{Label: label, Token: "report:" + strconv.FormatInt(r.ID, 10)}}
	}
	return "Your recent reports:", kb, nil
}

func editSelectScreen(r *models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report #%d. Which fields do you want to change?\n\n", r.ID)
	for _, f := range models.FieldCatalog {
		if f.AppliesTo(r) {
			fmt.Fprintf(&b, "%d. %s: %s\n", int(f), capitalize(f.String()), fieldValue(r, f))
		}
	}
	b.WriteString("\nSend their numbers, for example 1, 4.")
	return b.String()
}

func fieldValue(r *models.Report, f models.Field) string {
	switch f {
	case models.FieldDate:
		return formatDate(r.WorkDate)
	case models.FieldHours:
		return strconv.Itoa(r.Hours)
	case models.FieldLocation:
		return r.Location
	case models.FieldActivity:
		return r.Activity
	case models.FieldMachine:
		return r.MachineName
	case models.FieldCrop:
		if r.Crop == "" {
			return "none"
		}
		return r.Crop
	case models.FieldTripCount:
		return strconv.Itoa(r.TripCount)
	}
	return ""
}

// describe renders a report as the multi-line summary shown to users
func describe(r *models.Report) string {
	lines := []string{
		"Date: " + formatDate(r.WorkDate),
		"Hours: " + strconv.Itoa(r.Hours),
	}
	if r.IsTechnique() {
		lines = append(lines, fmt.Sprintf("Machine: %s %s", r.MachineKind, r.MachineName))
	} else {
		lines = append(lines, "Work: manual")
	}
	lines = append(lines, "Task: "+r.Activity)
	if r.IsTruck() {
		lines = append(lines, "Trips: "+strconv.Itoa(r.TripCount), "Loading point: "+r.Location)
	} else {
		lines = append(lines, "Location: "+r.Location)
	}
	lines = append(lines, "Crop: "+fieldValue(r, models.FieldCrop))
	return strings.Join(lines, "\n")
}

// grid lays buttons out in rows of n
func grid(buttons []chat.Button, n int) [][]chat.Button {
	var rows [][]chat.Button
	for len(buttons) > n {
		rows = append(rows, buttons[:n])
		buttons = buttons[n:]
	}
	if len(buttons) > 0 {
		rows = append(rows, buttons)
	}
	return rows
}
