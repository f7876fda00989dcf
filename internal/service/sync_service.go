package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/obs"
	"github.com/field-worklog-bot/internal/repository"
	"github.com/field-worklog-bot/internal/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SyncOptions tunes the mirror
type SyncOptions struct {
	TitlePrefix        string // spreadsheet title is "<prefix> YYYY-MM"
	TabName            string
	ParentFolderID     string
	NextMonthThreshold int // create next month's sheet when fewer days remain
	Location           *time.Location
}

// SyncEngine mirrors the report store into one spreadsheet per month.
// Runs are single-flight and process months one after another.
type SyncEngine struct {
	reports repository.ReportRepository
	mirror  repository.MirrorRepository
	sinks   repository.SinkRepository
	sink    sink.Sink
	locker  Locker
	opts    SyncOptions
	now     func() time.Time
	log     zerolog.Logger
}

// NewSyncEngine creates the engine. The sink should already carry retry and rate limiting.
func NewSyncEngine(repos *repository.Repositories, s sink.Sink, locker Locker, opts SyncOptions, log zerolog.Logger) *SyncEngine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TabName == "" {
		opts.TabName = "Reports"
	}
	return &SyncEngine{
		reports: repos.Report,
		mirror:  repos.Mirror,
		sinks:   repos.Sink,
		sink:    s,
		locker:  locker,
		opts:    opts,
		now:     time.Now,
		log:     log.With().Str("service", "sync").Logger(),
	}
}

// SetClock replaces the time source
func (e *SyncEngine) SetClock(now func() time.Time) {
	e.now = now
}

// syncRun is the state of one run
type syncRun struct {
	id      string
	log     zerolog.Logger
	result  *models.SyncResult
	sinks   map[models.Period]*models.MonthlySink
	tainted map[string]bool // objects whose local row numbers can no longer be trusted
	// store is used for bookkeeping that follows a remote success; it is never
	// cancelled, so a written row is always recorded
	store context.Context
}

func (r *syncRun) fail(err error, msg string) {
	r.result.Failed++
	r.result.Errors = append(r.result.Errors, fmt.Sprintf("%s: %v", msg, err))
	r.log.Error().Err(err).Msg(msg)
}

// Run performs one sync. It returns models.ErrSyncInProgress if another run is active.
// A started run ignores the cancellation of ctx. It stops early only when the
// lock is lost, and then returns what it did so far.
func (e *SyncEngine) Run(ctx context.Context) (*models.SyncResult, error) {
	ctx = context.WithoutCancel(ctx)
	held, unlock, err := e.locker.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := e.now()
	run := &syncRun{
		id:      uuid.NewString(),
		sinks:   make(map[models.Period]*models.MonthlySink),
		tainted: make(map[string]bool),
		store:   ctx,
	}
	run.log = e.log.With().Str("run_id", run.id).Logger()
	run.result = &models.SyncResult{RunID: run.id}
	run.log.Info().Msg("Sync run started")

	if err := e.sync(held, run); err != nil {
		obs.SyncRun("error", time.Since(start))
		run.log.Error().Err(err).Msg("Sync run aborted")
		return nil, err
	}
	if cause := context.Cause(held); cause != nil {
		run.result.Errors = append(run.result.Errors, fmt.Sprintf("run stopped early: %v", cause))
		run.log.Error().Err(cause).Msg("Sync lock lost, run stopped early")
	}

	res := run.result
	res.SetDuration(e.now().Sub(start))
	obs.SyncRows("insert", res.Inserted)
	obs.SyncRows("update", res.Updated)
	obs.SyncRows("delete", res.Deleted)
	obs.SyncRows("failed", res.Failed)
	outcome := "ok"
	if res.Failed > 0 || len(res.SkippedPeriods) > 0 || len(res.Errors) > 0 {
		outcome = "partial"
	}
	obs.SyncRun(outcome, res.Duration)

	run.log.Info().
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("deleted", res.Deleted).
		Int("failed", res.Failed).
		Bool("next_month_created", res.NextMonthCreated).
		Dur("duration", res.Duration).
		Msg("Sync run completed")
	return res, nil
}

func (e *SyncEngine) sync(ctx context.Context, run *syncRun) error {
	reports := make(map[int64]*models.Report)
	partitions := make(map[models.Period][]*models.Report)
	err := e.reports.StreamAll(ctx, func(r *models.Report) error {
		reports[r.ID] = r
		partitions[r.Period()] = append(partitions[r.Period()], r)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load reports: %w", err)
	}

	entries, err := e.mirror.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load mirror entries: %w", err)
	}

	if e.deleteStale(ctx, run, reports, entries) {
		if ctx.Err() != nil {
			return nil
		}
		if entries, err = e.mirror.All(ctx); err != nil {
			return fmt.Errorf("failed to reload mirror entries: %w", err)
		}
	}

	mirrored := make(map[int64]*models.MirrorEntry, len(entries))
	for _, entry := range entries {
		mirrored[entry.ReportID] = entry
	}

	periods := make([]models.Period, 0, len(partitions))
	for p := range partitions {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	for _, p := range periods {
		if ctx.Err() != nil {
			return nil
		}
		e.syncPartition(ctx, run, p, partitions[p], mirrored)
	}

	if ctx.Err() != nil {
		return nil
	}
	e.ensureNextMonth(ctx, run)
	return nil
}

// deleteStale removes the rows of reports that no longer exist, and of
// reports whose work date moved to another month. Rows are deleted bottom-up
// per object so the recorded row numbers of the remaining deletions stay valid.
// It reports whether any mirror entry was removed.
func (e *SyncEngine) deleteStale(ctx context.Context, run *syncRun, reports map[int64]*models.Report, entries []*models.MirrorEntry) bool {
	byObject := make(map[string][]*models.MirrorEntry)
	for _, entry := range entries {
		r, ok := reports[entry.ReportID]
		if ok {
			ms, err := e.localSink(ctx, run, r.Period())
			if err != nil {
				run.log.Warn().Err(err).Int64("report_id", r.ID).Msg("Failed to resolve sink of mirrored report")
				continue
			}
			if ms != nil && ms.ObjectID == entry.ObjectID {
				continue
			}
		}
		byObject[entry.ObjectID] = append(byObject[entry.ObjectID], entry)
	}

	objects := make([]string, 0, len(byObject))
	for obj := range byObject {
		objects = append(objects, obj)
	}
	sort.Strings(objects)

	removed := false
	for _, obj := range objects {
		stale := byObject[obj]
		sort.Slice(stale, func(i, j int) bool { return stale[i].RowNumber > stale[j].RowNumber })

		for _, entry := range stale {
			if run.tainted[obj] || ctx.Err() != nil {
				break
			}
			log := run.log.With().Int64("report_id", entry.ReportID).Str("object_id", obj).Int("row", entry.RowNumber).Logger()

			held, err := e.rowHolds(ctx, obj, entry)
			if err != nil {
				run.fail(err, fmt.Sprintf("read row %d of report %d", entry.RowNumber, entry.ReportID))
				continue
			}
			// a row that no longer holds the report was deleted by an earlier
			// run whose local bookkeeping failed; only the entry is left to drop
			if held {
				if err := e.sink.DeleteRows(ctx, obj, entry.RowNumber, entry.RowNumber); err != nil {
					run.fail(err, fmt.Sprintf("delete row %d of report %d", entry.RowNumber, entry.ReportID))
					continue
				}
			} else {
				log.Warn().Msg("Row no longer holds the report, dropping mirror entry only")
			}
			if err := e.mirror.Remove(run.store, entry); err != nil {
				// the remote row is gone but local rows below it were not shifted
				run.tainted[obj] = true
				run.fail(err, fmt.Sprintf("remove mirror entry of report %d", entry.ReportID))
				continue
			}
			removed = true
			run.result.Deleted++
			log.Debug().Msg("Mirrored row deleted")
		}
	}
	return removed
}

// rowHolds reports whether the entry's recorded row still carries its report id
func (e *SyncEngine) rowHolds(ctx context.Context, obj string, entry *models.MirrorEntry) (bool, error) {
	rows, err := e.sink.ReadRange(ctx, obj, sink.RowRange(entry.RowNumber, 1))
	if err != nil {
		return false, err
	}
	return len(rows) > 0 && len(rows[0]) > 0 && rows[0][0] == strconv.FormatInt(entry.ReportID, 10), nil
}

func (e *SyncEngine) syncPartition(ctx context.Context, run *syncRun, p models.Period, items []*models.Report, mirrored map[int64]*models.MirrorEntry) {
	var updates, appends []*models.Report
	for _, r := range items {
		entry, ok := mirrored[r.ID]
		switch {
		case !ok:
			appends = append(appends, r)
		case r.UpdatedAt.After(entry.LastSyncedAt):
			updates = append(updates, r)
		}
	}
	if len(updates) == 0 && len(appends) == 0 {
		return
	}

	log := run.log.With().Str("period", p.String()).Logger()

	ms, err := e.resolveSink(ctx, run, p)
	if err != nil {
		run.result.SkippedPeriods = append(run.result.SkippedPeriods, p.String())
		run.result.Errors = append(run.result.Errors, fmt.Sprintf("month %s: %v", p, err))
		log.Error().Err(err).Msg("Failed to resolve monthly sink, skipping month")
		return
	}
	if run.tainted[ms.ObjectID] {
		run.result.SkippedPeriods = append(run.result.SkippedPeriods, p.String())
		log.Warn().Str("object_id", ms.ObjectID).Msg("Row bookkeeping out of date, skipping month")
		return
	}

	width := len(models.SheetHeader)
	for _, r := range updates {
		if ctx.Err() != nil {
			return
		}
		entry := mirrored[r.ID]
		if entry.ObjectID != ms.ObjectID {
			// moved from another month and its old row could not be removed yet
			log.Warn().Int64("report_id", r.ID).Str("object_id", entry.ObjectID).Msg("Report still mirrored in another month")
			continue
		}
		err := e.sink.WriteRange(ctx, ms.ObjectID, sink.RowRange(entry.RowNumber, width), [][]string{r.SheetRow()})
		if err != nil {
			run.fail(err, fmt.Sprintf("update row %d of report %d", entry.RowNumber, r.ID))
			continue
		}
		if err := e.mirror.Touch(run.store, r.ID, e.syncedAt(r)); err != nil {
			run.fail(err, fmt.Sprintf("touch mirror entry of report %d", r.ID))
			continue
		}
		run.result.Updated++
	}

	if len(appends) == 0 || ctx.Err() != nil {
		return
	}

	used, err := e.sink.ReadRange(ctx, ms.ObjectID, sink.UsedRowsRange)
	if err != nil {
		run.result.Failed += len(appends)
		run.result.Errors = append(run.result.Errors, fmt.Sprintf("month %s: read used rows: %v", p, err))
		log.Error().Err(err).Msg("Failed to read used rows, appends postponed")
		return
	}
	next := len(used) + 1
	if next < 2 {
		next = 2
	}

	for _, r := range appends {
		if ctx.Err() != nil {
			return
		}
		err := e.sink.WriteRange(ctx, ms.ObjectID, sink.RowRange(next, width), [][]string{r.SheetRow()})
		if err != nil {
			run.fail(err, fmt.Sprintf("append report %d", r.ID))
			continue
		}
		now := e.syncedAt(r)
		entry := &models.MirrorEntry{
			ReportID:      r.ID,
			ObjectID:      ms.ObjectID,
			RowNumber:     next,
			FirstSyncedAt: now,
			LastSyncedAt:  now,
		}
		// the row is taken remotely either way
		next++
		if err := e.mirror.Create(run.store, entry); err != nil {
			run.fail(err, fmt.Sprintf("record mirror entry of report %d", r.ID))
			continue
		}
		run.result.Inserted++
	}
}

// syncedAt is the sync stamp recorded for r; never earlier than the report's
// own update time so clock skew between the store and this process cannot
// cause endless rewrites
func (e *SyncEngine) syncedAt(r *models.Report) time.Time {
	now := e.now()
	if r.UpdatedAt.After(now) {
		return r.UpdatedAt
	}
	return now
}

// localSink looks up a month's sink in the store only
func (e *SyncEngine) localSink(ctx context.Context, run *syncRun, p models.Period) (*models.MonthlySink, error) {
	if ms, ok := run.sinks[p]; ok {
		return ms, nil
	}
	ms, err := e.sinks.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if ms != nil {
		run.sinks[p] = ms
	}
	return ms, nil
}

// resolveSink returns the month's sink, creating it on first use
func (e *SyncEngine) resolveSink(ctx context.Context, run *syncRun, p models.Period) (*models.MonthlySink, error) {
	ms, err := e.localSink(ctx, run, p)
	if err != nil || ms != nil {
		return ms, err
	}
	return e.createSink(ctx, run, p)
}

func (e *SyncEngine) createSink(ctx context.Context, run *syncRun, p models.Period) (*models.MonthlySink, error) {
	title := fmt.Sprintf("%s %s", e.opts.TitlePrefix, p)
	obj, err := e.sink.CreateObject(ctx, title, e.opts.ParentFolderID)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	log := run.log.With().Str("period", p.String()).Str("object_id", obj.ID).Logger()

	if err := e.sink.Rename(ctx, obj.ID, e.opts.TabName); err != nil {
		log.Warn().Err(err).Msg("Created sheet left unused")
		return nil, fmt.Errorf("rename sheet tab: %w", err)
	}
	if err := e.sink.WriteHeader(ctx, obj.ID, models.SheetHeader); err != nil {
		log.Warn().Err(err).Msg("Created sheet left unused")
		return nil, fmt.Errorf("write header: %w", err)
	}

	ms := &models.MonthlySink{
		Year:      p.Year,
		Month:     p.Month,
		ObjectID:  obj.ID,
		URL:       obj.URL,
		CreatedAt: e.now(),
	}
	if err := e.sinks.Create(run.store, ms); err != nil {
		return nil, fmt.Errorf("record monthly sink: %w", err)
	}
	run.sinks[p] = ms
	log.Info().Str("url", obj.URL).Msg("Monthly sheet created")
	return ms, nil
}

// ensureNextMonth creates next month's sheet ahead of time near the end of a month
func (e *SyncEngine) ensureNextMonth(ctx context.Context, run *syncRun) {
	today := e.now().In(e.opts.Location)
	if daysLeft(today) >= e.opts.NextMonthThreshold {
		return
	}

	next := models.PeriodOf(today).Next()
	ms, err := e.localSink(ctx, run, next)
	if err != nil {
		run.result.Errors = append(run.result.Errors, fmt.Sprintf("month %s: %v", next, err))
		run.log.Error().Err(err).Str("period", next.String()).Msg("Failed to look up next month sink")
		return
	}
	if ms != nil {
		return
	}
	if _, err := e.createSink(ctx, run, next); err != nil {
		run.result.Errors = append(run.result.Errors, fmt.Sprintf("month %s: %v", next, err))
		run.log.Error().Err(err).Str("period", next.String()).Msg("Failed to create next month sink")
		return
	}
	run.result.NextMonthCreated = true
}

// daysLeft counts the days after t until the end of its month
func daysLeft(t time.Time) int {
	last := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return last - t.Day()
}

// IsInProgress reports whether err means another run holds the lock
func IsInProgress(err error) bool {
	return errors.Is(err, models.ErrSyncInProgress)
}
