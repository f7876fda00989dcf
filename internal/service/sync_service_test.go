package service_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/field-worklog-bot/internal/mocks"
	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/repository"
	"github.com/field-worklog-bot/internal/service"
	"github.com/field-worklog-bot/internal/sink"
	"github.com/rs/zerolog"
)

type syncFixture struct {
	repos   *repository.Repositories
	reports *mocks.MockReportRepository
	mirror  *mocks.MockMirrorRepository
	sinks   *mocks.MockSinkRepository
	sink    *mocks.MockSink
	engine  *service.SyncEngine
}

func newSyncFixture(t *testing.T, opts service.SyncOptions) *syncFixture {
	t.Helper()
	repos := mocks.NewRepositories()
	remote := mocks.NewMockSink()
	if opts.TitlePrefix == "" {
		opts.TitlePrefix = "Work reports"
	}
	return &syncFixture{
		repos:   repos,
		reports: repos.Report.(*mocks.MockReportRepository),
		mirror:  repos.Mirror.(*mocks.MockMirrorRepository),
		sinks:   repos.Sink.(*mocks.MockSinkRepository),
		sink:    remote,
		engine:  service.NewSyncEngine(repos, remote, service.NewLocalLocker(), opts, zerolog.Nop()),
	}
}

func (f *syncFixture) addReport(t *testing.T, userID int64, date string, hours int) *models.Report {
	t.Helper()
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		t.Fatalf("bad date %q: %v", date, err)
	}
	r := &models.Report{
		CreatorID:     userID,
		CreatorName:   "Worker " + strconv.FormatInt(userID, 10),
		Location:      "North Field",
		LocationGroup: "Fields",
		Activity:      "Weeding",
		ActivityGroup: "Field work",
		WorkDate:      day,
		Hours:         hours,
	}
	if err := f.reports.Create(context.Background(), r); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return r
}

func (f *syncFixture) run(t *testing.T) *models.SyncResult {
	t.Helper()
	res, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res
}

func (f *syncFixture) entry(t *testing.T, reportID int64) models.MirrorEntry {
	t.Helper()
	e, ok := f.mirror.Get(reportID)
	if !ok {
		t.Fatalf("Expected mirror entry for report %d", reportID)
	}
	return e
}

func june() models.Period {
	return models.Period{Year: 2024, Month: time.June}
}

func TestSync_LazyMonthlySinkCreatedOnceAndReused(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{TabName: "Reports"})
	first := f.addReport(t, 1, "2024-06-03", 8)

	res := f.run(t)
	if res.Inserted != 1 {
		t.Fatalf("Expected 1 insert, got %d", res.Inserted)
	}

	ms, _ := f.sinks.Get(context.Background(), june())
	if ms == nil {
		t.Fatal("Expected monthly sink for 2024-06 to be recorded")
	}
	sheet := f.sink.Sheet(ms.ObjectID)
	if sheet.Name != "Work reports 2024-06" {
		t.Errorf("Unexpected sheet name %q", sheet.Name)
	}
	if sheet.Tab != "Reports" {
		t.Errorf("Expected tab renamed to Reports, got %q", sheet.Tab)
	}
	if !sheet.HeaderBold {
		t.Error("Expected header row to be bold")
	}
	if sheet.Rows[0][0] != models.SheetHeader[0] {
		t.Errorf("Expected header in row 1, got %v", sheet.Rows[0])
	}
	if got := f.entry(t, first.ID); got.RowNumber != 2 || got.ObjectID != ms.ObjectID {
		t.Errorf("Expected first report at row 2 of %s, got %+v", ms.ObjectID, got)
	}

	second := f.addReport(t, 1, "2024-06-20", 4)
	f.sink.ResetCounters()
	res = f.run(t)

	if f.sink.Creates != 0 {
		t.Errorf("Expected sink reuse, got %d creates", f.sink.Creates)
	}
	if res.Inserted != 1 {
		t.Errorf("Expected 1 insert, got %d", res.Inserted)
	}
	if got := f.entry(t, second.ID); got.RowNumber != 3 || got.ObjectID != ms.ObjectID {
		t.Errorf("Expected second report at row 3 of %s, got %+v", ms.ObjectID, got)
	}
	if len(f.sinks.Sinks) != 1 {
		t.Errorf("Expected exactly one monthly sink, got %d", len(f.sinks.Sinks))
	}
}

func TestSync_IdempotentSecondRun(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	f.addReport(t, 1, "2024-06-03", 8)
	f.addReport(t, 2, "2024-07-01", 6)

	res := f.run(t)
	if res.Inserted != 2 {
		t.Fatalf("Expected 2 inserts, got %d", res.Inserted)
	}

	f.sink.ResetCounters()
	res = f.run(t)

	if calls := f.sink.Calls(); calls != 0 {
		t.Errorf("Expected no remote calls on an unchanged store, got %d", calls)
	}
	if res.Changed() {
		t.Errorf("Expected no changes, got %+v", res)
	}
	if res.Summary() != "no changes" {
		t.Errorf("Expected summary 'no changes', got %q", res.Summary())
	}
}

func TestSync_NothingPendingMakesNoRemoteCalls(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})

	res := f.run(t)

	if calls := f.sink.Calls(); calls != 0 {
		t.Errorf("Expected zero remote calls, got %d", calls)
	}
	if res.Summary() != "no changes" {
		t.Errorf("Expected 'no changes', got %q", res.Summary())
	}
	if res.RunID == "" {
		t.Error("Expected a run id")
	}
}

func TestSync_EditOverwritesAssignedRow(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	first := f.addReport(t, 1, "2024-06-03", 8)
	f.addReport(t, 1, "2024-06-04", 8)
	f.run(t)
	before := f.entry(t, first.ID)

	first.Hours = 11
	if err := f.reports.Update(context.Background(), first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	f.sink.ResetCounters()
	res := f.run(t)

	if res.Updated != 1 || res.Inserted != 0 {
		t.Fatalf("Expected 1 update and no inserts, got %+v", res)
	}
	if w := f.sink.WriteCalls(); w != 1 {
		t.Errorf("Expected exactly one write, got %d", w)
	}
	after := f.entry(t, first.ID)
	if after.RowNumber != before.RowNumber {
		t.Errorf("Expected row %d to be reused, got %d", before.RowNumber, after.RowNumber)
	}
	if !after.LastSyncedAt.After(before.LastSyncedAt) {
		t.Error("Expected last-synced-at to advance")
	}

	sheet := f.sink.Sheet(after.ObjectID)
	if len(sheet.Rows) != 3 {
		t.Errorf("Expected header plus 2 rows, got %d rows", len(sheet.Rows))
	}
	hoursCol := len(models.SheetHeader) - 2
	if got := sheet.Rows[after.RowNumber-1][hoursCol]; got != "11" {
		t.Errorf("Expected hours 11 in row %d, got %q", after.RowNumber, got)
	}
}

func TestSync_DeletionPropagatesOnce(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	a := f.addReport(t, 1, "2024-06-03", 8)
	b := f.addReport(t, 1, "2024-06-04", 8)
	c := f.addReport(t, 1, "2024-06-05", 8)
	f.run(t)

	if err := f.reports.Delete(context.Background(), b.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	f.sink.ResetCounters()
	res := f.run(t)

	if res.Deleted != 1 || f.sink.Deletes != 1 {
		t.Fatalf("Expected exactly one remote delete, got result %+v and %d deletes", res, f.sink.Deletes)
	}
	if _, ok := f.mirror.Get(b.ID); ok {
		t.Error("Expected mirror entry of deleted report to be removed")
	}
	if got := f.entry(t, a.ID).RowNumber; got != 2 {
		t.Errorf("Expected row above deletion to stay at 2, got %d", got)
	}
	if got := f.entry(t, c.ID).RowNumber; got != 3 {
		t.Errorf("Expected row below deletion to move up to 3, got %d", got)
	}

	f.sink.ResetCounters()
	res = f.run(t)
	if f.sink.Deletes != 0 || res.Deleted != 0 {
		t.Errorf("Expected no further deletes, got %d", f.sink.Deletes)
	}

	// the shifted report is still updated at its new row
	c.Hours = 2
	if err := f.reports.Update(context.Background(), c); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	f.run(t)
	entry := f.entry(t, c.ID)
	sheet := f.sink.Sheet(entry.ObjectID)
	if got := sheet.Rows[entry.RowNumber-1][0]; got != strconv.FormatInt(c.ID, 10) {
		t.Errorf("Expected report %d in row %d, found %q", c.ID, entry.RowNumber, got)
	}
}

func TestSync_MultipleDeletionsBottomUp(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	var reports []*models.Report
	for day := 1; day <= 4; day++ {
		reports = append(reports, f.addReport(t, 1, "2024-06-0"+strconv.Itoa(day), 4))
	}
	f.run(t)

	for _, r := range []*models.Report{reports[0], reports[2]} {
		if err := f.reports.Delete(context.Background(), r.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}
	res := f.run(t)
	if res.Deleted != 2 {
		t.Fatalf("Expected 2 deletions, got %d", res.Deleted)
	}

	ms, _ := f.sinks.Get(context.Background(), june())
	sheet := f.sink.Sheet(ms.ObjectID)
	want := []int64{reports[1].ID, reports[3].ID}
	if len(sheet.Rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %v", sheet.Rows)
	}
	for i, id := range want {
		if got := sheet.Rows[i+1][0]; got != strconv.FormatInt(id, 10) {
			t.Errorf("Row %d: expected report %d, got %q", i+2, id, got)
		}
		if got := f.entry(t, id).RowNumber; got != i+2 {
			t.Errorf("Report %d: expected row %d, got %d", id, i+2, got)
		}
	}
}

func TestSync_FailedBookkeepingNeverDeletesAnotherRow(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	a := f.addReport(t, 1, "2024-06-03", 8)
	b := f.addReport(t, 1, "2024-06-04", 8)
	c := f.addReport(t, 1, "2024-06-05", 8)
	f.run(t)

	if err := f.reports.Delete(context.Background(), b.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	f.mirror.RemoveErr = errors.New("connection reset by peer")
	res := f.run(t)
	if res.Failed != 1 || len(res.SkippedPeriods) != 1 {
		t.Fatalf("Expected the failure to skip the month, got %+v", res)
	}

	// the remote row is gone but the entry still points at row 3, now holding c
	f.mirror.RemoveErr = nil
	f.sink.ResetCounters()
	res = f.run(t)
	if res.Deleted != 1 || f.sink.Deletes != 0 {
		t.Fatalf("Expected the entry dropped without a remote delete, got %+v and %d deletes", res, f.sink.Deletes)
	}

	ms, _ := f.sinks.Get(context.Background(), june())
	sheet := f.sink.Sheet(ms.ObjectID)
	if len(sheet.Rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %v", sheet.Rows)
	}
	for _, r := range []*models.Report{a, c} {
		entry := f.entry(t, r.ID)
		if got := sheet.Rows[entry.RowNumber-1][0]; got != strconv.FormatInt(r.ID, 10) {
			t.Errorf("Expected report %d in row %d, found %q", r.ID, entry.RowNumber, got)
		}
	}
}

// cancelAfterWrite cancels the caller's context as soon as a row write has reached the sheet
type cancelAfterWrite struct {
	*mocks.MockSink
	cancel context.CancelFunc
}

func (s *cancelAfterWrite) WriteRange(ctx context.Context, id, a1 string, rows [][]string) error {
	err := s.MockSink.WriteRange(ctx, id, a1, rows)
	s.cancel()
	return err
}

func TestSync_CallerCancellationNeverDuplicatesRows(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	a := f.addReport(t, 1, "2024-06-03", 8)
	b := f.addReport(t, 1, "2024-06-04", 8)

	ctx, cancel := context.WithCancel(context.Background())
	engine := service.NewSyncEngine(f.repos, &cancelAfterWrite{MockSink: f.sink, cancel: cancel}, nil,
		service.SyncOptions{TitlePrefix: "Work reports"}, zerolog.Nop())

	res, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("Expected the caller's context to be cancelled during the run")
	}
	if res.Inserted != 2 || res.Failed != 0 {
		t.Fatalf("Expected the run to finish despite the cancellation, got %+v", res)
	}

	if res := f.run(t); res.Changed() {
		t.Errorf("Expected nothing left to mirror, got %s", res.Summary())
	}

	ms, _ := f.sinks.Get(context.Background(), june())
	seen := make(map[string]int)
	for _, row := range f.sink.Sheet(ms.ObjectID).Rows[1:] {
		seen[row[0]]++
	}
	for _, r := range []*models.Report{a, b} {
		if n := seen[strconv.FormatInt(r.ID, 10)]; n != 1 {
			t.Errorf("Expected exactly one row for report %d, got %d", r.ID, n)
		}
	}
}

// losableLocker hands out locks the test can take away mid-run
type losableLocker struct {
	lose context.CancelCauseFunc
}

func (l *losableLocker) TryLock(ctx context.Context) (context.Context, func(), error) {
	held, cancel := context.WithCancelCause(ctx)
	l.lose = cancel
	return held, func() { cancel(nil) }, nil
}

func TestSync_LostLockStopsWritesAndKeepsBookkeeping(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	for _, day := range []string{"2024-06-03", "2024-06-04", "2024-06-05"} {
		f.addReport(t, 1, day, 8)
	}
	locker := &losableLocker{}
	f.engine = service.NewSyncEngine(f.repos, f.sink, locker, service.SyncOptions{TitlePrefix: "Work reports"}, zerolog.Nop())

	writes := 0
	f.sink.Fail = func(op, id string) error {
		if op == "write_range" {
			writes++
			if writes == 2 {
				// the write in flight still lands
				locker.lose(models.ErrSyncLockLost)
			}
		}
		return nil
	}

	res := f.run(t)
	if writes != 2 {
		t.Errorf("Expected no row write after the lock was lost, got %d writes", writes)
	}
	if res.Inserted != 2 || len(f.mirror.Entries) != 2 {
		t.Fatalf("Expected both written rows recorded, got %+v with %d entries", res, len(f.mirror.Entries))
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], models.ErrSyncLockLost.Error()) {
		t.Errorf("Expected the lost lock in the summary, got %v", res.Errors)
	}

	f.sink.Fail = nil
	res = f.run(t)
	if res.Inserted != 1 || len(res.Errors) != 0 {
		t.Fatalf("Expected the remaining report on the next run, got %+v", res)
	}
	ms, _ := f.sinks.Get(context.Background(), june())
	if rows := f.sink.Sheet(ms.ObjectID).Rows; len(rows) != 4 {
		t.Errorf("Expected header plus 3 rows, got %v", rows)
	}
}

func TestSync_DateMovedToAnotherMonth(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	r := f.addReport(t, 1, "2024-06-30", 8)
	f.run(t)
	juneSink, _ := f.sinks.Get(context.Background(), june())

	r.WorkDate = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if err := f.reports.Update(context.Background(), r); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	res := f.run(t)

	if res.Deleted != 1 || res.Inserted != 1 {
		t.Fatalf("Expected the row to move months, got %+v", res)
	}
	if rows := f.sink.Sheet(juneSink.ObjectID).Rows; len(rows) != 1 {
		t.Errorf("Expected June sheet to keep only its header, got %d rows", len(rows))
	}
	julySink, _ := f.sinks.Get(context.Background(), models.Period{Year: 2024, Month: time.July})
	if julySink == nil {
		t.Fatal("Expected July sink")
	}
	if e := f.entry(t, r.ID); e.ObjectID != julySink.ObjectID || e.RowNumber != 2 {
		t.Errorf("Expected entry in July row 2, got %+v", e)
	}
}

func TestSync_SinkFailureSkipsOnlyThatMonth(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	f.addReport(t, 1, "2024-05-10", 8)
	f.addReport(t, 1, "2024-06-10", 8)

	failed := false
	f.sink.Fail = func(op, id string) error {
		if op == "create_object" && !failed {
			failed = true
			return errors.New("permission denied")
		}
		return nil
	}

	res := f.run(t)
	if len(res.SkippedPeriods) != 1 || res.SkippedPeriods[0] != "2024-05" {
		t.Fatalf("Expected May to be skipped, got %v", res.SkippedPeriods)
	}
	if res.Inserted != 1 {
		t.Errorf("Expected June to be exported, got %d inserts", res.Inserted)
	}

	res = f.run(t)
	if res.Inserted != 1 || len(res.SkippedPeriods) != 0 {
		t.Errorf("Expected May to be exported on the next run, got %+v", res)
	}
}

func TestSync_ItemFailureDoesNotAbortRun(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{})
	f.addReport(t, 1, "2024-06-01", 8)
	f.addReport(t, 1, "2024-06-02", 8)
	f.addReport(t, 1, "2024-06-03", 8)

	writes := 0
	f.sink.Fail = func(op, id string) error {
		if op == "write_range" {
			writes++
			if writes == 2 {
				return errors.New("invalid value")
			}
		}
		return nil
	}

	res := f.run(t)
	if res.Inserted != 2 || res.Failed != 1 {
		t.Fatalf("Expected 2 inserts and 1 failure, got %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Errorf("Expected one error in the summary, got %v", res.Errors)
	}

	f.sink.Fail = nil
	res = f.run(t)
	if res.Inserted != 1 || res.Failed != 0 {
		t.Errorf("Expected the failed report on the next run, got %+v", res)
	}
	if n, _ := f.reports.Count(context.Background()); len(f.mirror.Entries) != n {
		t.Errorf("Expected every report mirrored, got %d of %d", len(f.mirror.Entries), n)
	}
}

func TestSync_TransientErrorsAreRetried(t *testing.T) {
	repos := mocks.NewRepositories()
	remote := mocks.NewMockSink()
	policy := sink.Policy{Attempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	engine := service.NewSyncEngine(repos, sink.WithRetry(remote, policy, zerolog.Nop()), nil, service.SyncOptions{}, zerolog.Nop())

	report := &models.Report{CreatorID: 1, Location: "North Field", Activity: "Weeding", WorkDate: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), Hours: 5}
	repos.Report.Create(context.Background(), report)

	failures := 0
	remote.Fail = func(op, id string) error {
		if op == "write_range" && failures < 2 {
			failures++
			return &sink.TransientError{Category: sink.CategoryServerError, Err: errors.New("backend error")}
		}
		return nil
	}

	res, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Inserted != 1 || res.Failed != 0 {
		t.Errorf("Expected the insert to succeed after retries, got %+v", res)
	}
	if failures != 2 {
		t.Errorf("Expected 2 transient failures, got %d", failures)
	}
}

func TestSync_SingleFlight(t *testing.T) {
	repos := mocks.NewRepositories()
	locker := service.NewLocalLocker()
	engine := service.NewSyncEngine(repos, mocks.NewMockSink(), locker, service.SyncOptions{}, zerolog.Nop())

	_, unlock, err := locker.TryLock(context.Background())
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	if _, err := engine.Run(context.Background()); !errors.Is(err, models.ErrSyncInProgress) {
		t.Errorf("Expected ErrSyncInProgress, got %v", err)
	}

	unlock()
	if _, err := engine.Run(context.Background()); err != nil {
		t.Errorf("Expected run after unlock to succeed, got %v", err)
	}
}

func TestSync_NextMonthCreatedNearMonthEnd(t *testing.T) {
	f := newSyncFixture(t, service.SyncOptions{NextMonthThreshold: 3})
	july := models.Period{Year: 2024, Month: time.July}

	f.engine.SetClock(func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) })
	if res := f.run(t); res.NextMonthCreated {
		t.Error("Did not expect next month sheet with 20 days left")
	}

	f.engine.SetClock(func() time.Time { return time.Date(2024, 6, 29, 12, 0, 0, 0, time.UTC) })
	res := f.run(t)
	if !res.NextMonthCreated {
		t.Fatal("Expected next month sheet with 1 day left")
	}
	if ms, _ := f.sinks.Get(context.Background(), july); ms == nil {
		t.Fatal("Expected July sink to be recorded")
	}
	if res.Summary() != "no changes; next month sheet created" {
		t.Errorf("Unexpected summary %q", res.Summary())
	}

	f.sink.ResetCounters()
	if res := f.run(t); res.NextMonthCreated || f.sink.Calls() != 0 {
		t.Errorf("Expected existing July sink to be reused, got %+v with %d calls", res, f.sink.Calls())
	}
}
