package dialog_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/field-worklog-bot/internal/chat"
	"github.com/field-worklog-bot/internal/dialog"
	"github.com/field-worklog-bot/internal/mocks"
	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/roles"
	"github.com/field-worklog-bot/internal/service"
	"github.com/rs/zerolog"
)

const (
	testChat   int64 = 500
	notifyChat int64 = 900
	workerID   int64 = 7
	adminID    int64 = 1
)

var clock = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

type stubSync struct {
	res  *models.SyncResult
	err  error
	runs int
}

func (s *stubSync) Run(ctx context.Context) (*models.SyncResult, error) {
	s.runs++
	return s.res, s.err
}

type fixture struct {
	t       *testing.T
	machine *dialog.Machine
	sender  *mocks.MockSender
	reports *mocks.MockReportRepository
	users   *mocks.MockUserRepository
	sync    *stubSync
	userID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := mocks.NewMockUserRepository()
	resolver := roles.NewResolver(zerolog.Nop(), roles.NewStaticSource(roles.StaticFile{Admin: []int64{adminID}}))
	reports := mocks.NewMockReportRepository()
	sender := mocks.NewMockSender()
	renderer := chat.NewRenderer(sender, chat.NewMemoryRegistry(), 47*time.Hour, zerolog.Nop())
	syncSvc := &stubSync{res: &models.SyncResult{RunID: "run"}}

	m := dialog.NewMachine(dialog.Deps{
		Reference: mocks.NewMockReferenceRepository(),
		Reports:   service.NewReportService(reports, 48*time.Hour, zerolog.Nop()),
		Users:     service.NewUserService(users, resolver),
		Sync:      syncSvc,
		Renderer:  renderer,
		Notifier:  dialog.NewChatNotifier(renderer, notifyChat, zerolog.Nop()),
	}, zerolog.Nop())
	m.SetClock(func() time.Time { return clock })
	m.SetAsync(func(f func()) { f() })

	return &fixture{t: t, machine: m, sender: sender, reports: reports, users: users, sync: syncSvc, userID: workerID}
}

func (f *fixture) handle(ev *models.ChatEvent) chat.Message {
	f.t.Helper()
	ev.ChatID, ev.UserID, ev.DisplayName = testChat, f.userID, "Ivan"
	if err := f.machine.Handle(context.Background(), ev); err != nil {
		f.t.Fatalf("Handle(%+v) failed: %v", ev, err)
	}
	msg, ok := f.sender.Last(testChat)
	if !ok {
		f.t.Fatal("Expected a rendered screen")
	}
	return msg
}

func (f *fixture) choose(token string) chat.Message {
	f.t.Helper()
	return f.handle(&models.ChatEvent{Choice: token})
}

func (f *fixture) send(text string) chat.Message {
	f.t.Helper()
	return f.handle(&models.ChatEvent{Text: text})
}

func (f *fixture) state() dialog.State {
	st, _ := f.machine.SessionState(chat.Key{ChatID: testChat, UserID: f.userID})
	return st
}

func (f *fixture) expectState(want dialog.State) {
	f.t.Helper()
	if got := f.state(); got != want {
		f.t.Fatalf("Expected state %s, got %s", want, got)
	}
}

func expectText(t *testing.T, msg chat.Message, want string) {
	t.Helper()
	if !strings.Contains(msg.Text, want) {
		t.Errorf("Expected screen to contain %q, got:\n%s", want, msg.Text)
	}
}

func tokens(msg chat.Message, prefix string) []string {
	var out []string
	for _, row := range msg.Keyboard {
		for _, b := range row {
			if strings.HasPrefix(b.Token, prefix) {
				out = append(out, b.Token)
			}
		}
	}
	return out
}

func (f *fixture) manualDraft(hours string) {
	f.t.Helper()
	f.choose("menu:new")
	f.choose("date:2024-06-03")
	f.choose("hours:" + hours)
	f.choose("kind:manual")
	f.choose("task:1")
	f.choose("loc:1")
	f.choose("crop:1")
}

func TestMachine_DailyCapAcrossTwoReports(t *testing.T) {
	f := newFixture(t)

	f.manualDraft("10")
	f.expectState(dialog.StateConfirm)
	msg := f.choose("confirm:save")
	expectText(t, msg, "Report #1 saved")
	if _, live := f.machine.SessionState(chat.Key{ChatID: testChat, UserID: workerID}); live {
		t.Error("Expected session to be cleared after saving")
	}

	saved := f.reports.Reports[1]
	if saved == nil {
		t.Fatal("Expected report to be stored")
	}
	if saved.Hours != 10 || saved.Activity != "Weeding" || saved.Location != "North Field" || saved.Crop != "Corn" {
		t.Errorf("Unexpected stored report: %+v", saved)
	}
	if saved.WorkDate.Format(models.DateLayout) != "2024-06-03" || saved.CreatorName != "Ivan" {
		t.Errorf("Unexpected date or author: %+v", saved)
	}
	if n := len(f.sender.SentTo(notifyChat)); n != 1 {
		t.Errorf("Expected 1 notification, got %d", n)
	}

	f.choose("menu:new")
	msg = f.choose("date:2024-06-03")
	expectText(t, msg, "10 hours are already reported, at most 14 left")
	if n := len(tokens(msg, "hours:")); n != 14 {
		t.Errorf("Expected 14 hour choices, got %d", n)
	}

	msg = f.choose("hours:16")
	expectText(t, msg, "pick at most 14")
	f.expectState(dialog.StatePickHours)
	if n, _ := f.reports.Count(context.Background()); n != 1 {
		t.Errorf("Expected no new report, got %d stored", n)
	}
}

func TestMachine_BackFollowsBranch(t *testing.T) {
	t.Run("manual location goes back to task", func(t *testing.T) {
		f := newFixture(t)
		f.choose("menu:new")
		f.choose("date:2024-06-03")
		f.choose("hours:8")
		f.choose("kind:manual")
		f.choose("task:1")
		f.expectState(dialog.StatePickLocation)
		f.choose("back")
		f.expectState(dialog.StatePickTask)
		f.choose("back")
		f.expectState(dialog.StatePickWorkKind)
	})

	t.Run("tractor location goes back to machine task", func(t *testing.T) {
		f := newFixture(t)
		f.choose("menu:new")
		f.choose("date:2024-06-03")
		f.choose("hours:8")
		f.choose("kind:technique")
		f.choose("mkind:1")
		f.choose("machine:1")
		f.choose("task:3")
		f.expectState(dialog.StatePickLocation)
		f.choose("back")
		f.expectState(dialog.StatePickMachineTask)
	})

	t.Run("truck collects trips before the loading point", func(t *testing.T) {
		f := newFixture(t)
		f.choose("menu:new")
		f.choose("date:2024-06-03")
		f.choose("hours:8")
		f.choose("kind:technique")
		f.choose("mkind:3")
		f.choose("machine:3")
		f.choose("task:5")
		f.expectState(dialog.StatePickCrop)
		f.choose("back")
		f.expectState(dialog.StatePickMachineTask)
		f.choose("task:5")
		f.choose("crop:2")
		f.expectState(dialog.StatePickTripCount)
		f.send("3")
		msg, _ := f.sender.Last(testChat)
		expectText(t, msg, "Where did you load?")
		f.expectState(dialog.StatePickLocation)
		f.choose("back")
		f.expectState(dialog.StatePickTripCount)
		f.send("3")
		f.choose("loc:3")
		f.expectState(dialog.StateConfirm)
		f.choose("back")
		f.expectState(dialog.StatePickLocation)
		f.choose("loc:3")
		f.choose("confirm:save")

		saved := f.reports.Reports[1]
		if saved == nil || saved.TripCount != 3 || saved.MachineKind != "Truck" || saved.Location != "Grain Yard" {
			t.Errorf("Unexpected truck report: %+v", saved)
		}
	})
}

func TestMachine_RejectsWrongInputShape(t *testing.T) {
	f := newFixture(t)
	f.choose("menu:new")

	msg := f.send("yesterday")
	expectText(t, msg, "Please use the buttons below.")
	f.expectState(dialog.StatePickDate)

	msg = f.choose("date:2024-05-01")
	expectText(t, msg, "Please pick one of the offered dates")

	msg = f.choose("hours:3")
	expectText(t, msg, "Please use the buttons below.")
	f.expectState(dialog.StatePickDate)

	f.choose("date:2024-06-03")
	f.choose("hours:8")
	f.choose("kind:technique")
	f.choose("mkind:3")
	f.choose("machine:1")
	f.expectState(dialog.StatePickMachine)
	f.choose("machine:4")
	f.choose("task:5")
	f.choose("crop:none")

	msg = f.choose("trips:3")
	expectText(t, msg, "Please type your answer.")
	msg = f.send("lots")
	expectText(t, msg, "Send the number of trips as digits")
	msg = f.send("101")
	expectText(t, msg, "Trip count must be between 1 and 100")
	f.expectState(dialog.StatePickTripCount)
}

func TestMachine_StateLossStartsOver(t *testing.T) {
	f := newFixture(t)

	msg := f.choose("hours:5")
	expectText(t, msg, "expired")
	if len(tokens(msg, "menu:new")) != 1 {
		t.Error("Expected the start menu after state loss")
	}
	f.expectState(dialog.StateStart)

	msg = f.choose("cancel")
	expectText(t, msg, "Cancelled.")
	msg = f.choose("back")
	expectText(t, msg, "expired")
}

func TestMachine_EditBeforeCommit(t *testing.T) {
	f := newFixture(t)
	f.manualDraft("6")

	f.choose("confirm:edit")
	f.expectState(dialog.StateConfirmEdit)
	f.choose("field:1")
	f.expectState(dialog.StatePickDate)
	f.choose("back")
	f.expectState(dialog.StateConfirmEdit)

	f.choose("field:3")
	msg := f.choose("loc:2")
	f.expectState(dialog.StateConfirm)
	expectText(t, msg, "Location: South Field")
	expectText(t, msg, "Crop: Corn")

	f.choose("confirm:edit")
	f.choose("field:kind")
	f.choose("kind:technique")
	f.expectState(dialog.StatePickMachineKind)
	f.choose("mkind:1")
	f.choose("machine:1")
	msg = f.choose("task:3")
	f.expectState(dialog.StateConfirm)
	expectText(t, msg, "Machine: Tractor MTZ-82")
	expectText(t, msg, "Task: Ploughing")

	f.choose("confirm:save")
	saved := f.reports.Reports[1]
	if saved == nil || saved.MachineKind != "Tractor" || saved.Location != "South Field" || saved.Hours != 6 {
		t.Errorf("Unexpected report after edit-before-commit: %+v", saved)
	}
}

func TestMachine_DateChangeRevalidatesHours(t *testing.T) {
	f := newFixture(t)
	f.reports.Create(context.Background(), &models.Report{
		CreatorID: workerID, Location: "North Field", Activity: "Weeding",
		WorkDate: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), Hours: 20,
	})

	f.manualDraft("6")
	f.choose("confirm:edit")
	f.choose("field:1")
	msg := f.choose("date:2024-06-02")
	f.expectState(dialog.StatePickHours)
	expectText(t, msg, "20 hours are already reported for 02.06.2024")
	if n := len(tokens(msg, "hours:")); n != 4 {
		t.Errorf("Expected 4 hour choices, got %d", n)
	}
	f.choose("hours:4")
	f.expectState(dialog.StateConfirm)
}

func truckReport(t *testing.T, f *fixture) *models.Report {
	t.Helper()
	r := &models.Report{
		CreatorID:     workerID,
		CreatorName:   "Ivan",
		Location:      "Grain Yard",
		LocationGroup: "Yards",
		Activity:      "Grain hauling",
		ActivityGroup: "Harvest",
		WorkDate:      time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		Hours:         8,
		MachineKind:   "Truck",
		MachineName:   "KAMAZ-1",
		Crop:          "Wheat",
		TripCount:     4,
	}
	if err := f.reports.Create(context.Background(), r); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return r
}

func TestMachine_EditQueueRunsInCatalogOrder(t *testing.T) {
	f := newFixture(t)
	r := truckReport(t, f)

	msg := f.choose("menu:mine")
	if got := tokens(msg, "report:"); len(got) != 1 || got[0] != "report:1" {
		t.Fatalf("Expected report 1 to be listed, got %v", got)
	}
	f.choose("report:1")
	f.expectState(dialog.StateReportActions)
	msg = f.choose("action:edit")
	expectText(t, msg, "7. Trip count: 4")

	msg = f.send("7, 1 4")
	f.expectState(dialog.StatePickDate)
	expectText(t, msg, "Report #1, new date.")

	f.choose("date:2024-06-02")
	if got := f.reports.Reports[r.ID].WorkDate.Format(models.DateLayout); got != "2024-06-02" {
		t.Errorf("Expected date to be saved right away, got %s", got)
	}
	f.expectState(dialog.StatePickMachineTask)

	f.choose("task:5")
	f.expectState(dialog.StatePickTripCount)
	msg = f.send("6")
	expectText(t, msg, "Report #1 updated: date, activity, trip count.")

	stored := f.reports.Reports[r.ID]
	if stored.TripCount != 6 || stored.MachineKind != "Truck" {
		t.Errorf("Unexpected report after edit: %+v", stored)
	}
	if n := len(f.sender.SentTo(notifyChat)); n != 3 {
		t.Errorf("Expected one notification per field, got %d", n)
	}
	if _, live := f.machine.SessionState(chat.Key{ChatID: testChat, UserID: workerID}); live {
		t.Error("Expected session to be cleared after the queue")
	}
}

func TestMachine_EditQueueBackKeepsSavedFields(t *testing.T) {
	f := newFixture(t)
	r := truckReport(t, f)

	f.choose("menu:mine")
	f.choose("report:1")
	f.choose("action:edit")
	f.send("7,1,4")
	f.choose("date:2024-06-01")

	msg := f.choose("back")
	f.expectState(dialog.StateEditSelect)
	expectText(t, msg, "Already saved: date.")

	stored := f.reports.Reports[r.ID]
	if stored.WorkDate.Format(models.DateLayout) != "2024-06-01" {
		t.Errorf("Expected the first field to stay saved, got %s", stored.WorkDate.Format(models.DateLayout))
	}
	if stored.TripCount != 4 {
		t.Errorf("Expected trip count untouched, got %d", stored.TripCount)
	}
}

func TestMachine_EditQueueRejectsInapplicableEntries(t *testing.T) {
	f := newFixture(t)
	f.manualDraft("6")
	f.choose("confirm:save")

	f.choose("menu:mine")
	f.choose("report:1")
	msg := f.choose("action:edit")
	if strings.Contains(msg.Text, "7. Trip count") {
		t.Error("Expected trip count to be hidden for manual work")
	}

	msg = f.send("7 5")
	expectText(t, msg, "7, 5 can't be changed on this report")
	f.expectState(dialog.StateEditSelect)

	msg = f.send("2, 9, x")
	f.expectState(dialog.StatePickHours)
	expectText(t, msg, "Ignored: 9, x.")
}

func TestMachine_EditQueueHoursCap(t *testing.T) {
	f := newFixture(t)
	f.manualDraft("10")
	f.choose("confirm:save")
	f.manualDraft("10")
	f.choose("confirm:save")

	f.choose("menu:mine")
	f.choose("report:1")
	f.choose("action:edit")
	f.send("2")
	msg := f.choose("hours:15")
	expectText(t, msg, "pick at most 14")
	f.expectState(dialog.StatePickHours)

	msg = f.choose("hours:14")
	expectText(t, msg, "Report #1 updated: hours.")
	if got := f.reports.Reports[1].Hours; got != 14 {
		t.Errorf("Expected 14 hours, got %d", got)
	}
}

func TestMachine_OwnershipDenied(t *testing.T) {
	f := newFixture(t)
	f.reports.Create(context.Background(), &models.Report{
		CreatorID: 99, Location: "North Field", Activity: "Weeding", WorkDate: clock, Hours: 3,
	})

	msg := f.choose("menu:mine")
	expectText(t, msg, "no reports")
	msg = f.choose("report:1")
	expectText(t, msg, "only the author can change this report")
	f.expectState(dialog.StateMyReports)
}

func TestMachine_DeleteReport(t *testing.T) {
	f := newFixture(t)
	f.manualDraft("6")
	f.choose("confirm:save")

	f.choose("menu:mine")
	f.choose("report:1")
	f.choose("action:delete")
	f.expectState(dialog.StateDeleteConfirm)
	f.choose("back")
	f.expectState(dialog.StateReportActions)
	f.choose("action:delete")
	msg := f.choose("delete:yes")
	expectText(t, msg, "Report #1 deleted.")

	if n, _ := f.reports.Count(context.Background()); n != 0 {
		t.Errorf("Expected report to be deleted, %d left", n)
	}
	notes := f.sender.SentTo(notifyChat)
	if len(notes) != 2 || !strings.Contains(notes[1].Text, "was deleted") {
		t.Errorf("Expected a deletion notice, got %+v", notes)
	}
}

func TestMachine_ExportNow(t *testing.T) {
	f := newFixture(t)
	msg := f.choose("menu:export")
	expectText(t, msg, "Only administrators")
	if f.sync.runs != 0 {
		t.Error("Expected no sync for a plain user")
	}

	f = newFixture(t)
	f.userID = adminID
	f.sync.res = &models.SyncResult{RunID: "run", Inserted: 2}
	msg = f.choose("start")
	if len(tokens(msg, "menu:export")) != 1 {
		t.Error("Expected export button for an administrator")
	}
	f.choose("menu:export")
	if f.sync.runs != 1 {
		t.Fatalf("Expected one sync run, got %d", f.sync.runs)
	}
	sent := f.sender.SentTo(testChat)
	last := sent[len(sent)-1]
	expectText(t, last, "Export finished: inserted 2, updated 0, deleted 0.")

	f.sync.err = models.ErrSyncInProgress
	f.choose("menu:export")
	sent = f.sender.SentTo(testChat)
	expectText(t, sent[len(sent)-1], "already running")
}

func TestMachine_RendersInPlace(t *testing.T) {
	f := newFixture(t)
	f.choose("menu:new")
	f.choose("date:2024-06-03")
	f.choose("hours:8")

	if n := len(f.sender.SentTo(testChat)); n != 1 {
		t.Errorf("Expected one sent message, got %d", n)
	}
	if n := len(f.sender.Edited); n != 2 {
		t.Errorf("Expected 2 in-place edits, got %d", n)
	}
}

func TestMachine_IdentifyFailureStillAnswers(t *testing.T) {
	f := newFixture(t)
	f.choose(dialog.TokenStart)
	f.choose("menu:new")
	f.expectState(dialog.StatePickDate)

	f.users.UpsertErr = errors.New("connection refused")
	ev := &models.ChatEvent{ChatID: testChat, UserID: f.userID, DisplayName: "Ivan", Choice: "date:2024-06-03"}
	if err := f.machine.Handle(context.Background(), ev); err == nil {
		t.Fatal("Expected the identify failure to be returned")
	}

	msg, ok := f.sender.Last(testChat)
	if !ok || !strings.Contains(msg.Text, "Something went wrong") {
		t.Fatalf("Expected a failure notice, got %+v", msg)
	}
	if len(msg.Keyboard) != 1 || msg.Keyboard[0][0].Token != dialog.TokenStart {
		t.Errorf("Expected a single retry button, got %+v", msg.Keyboard)
	}
	f.expectState(dialog.StatePickDate)

	f.users.UpsertErr = nil
	f.choose("date:2024-06-03")
	f.expectState(dialog.StatePickHours)
}
