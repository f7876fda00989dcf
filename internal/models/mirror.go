package models

import (
	"fmt"
	"time"
)

// Period is a calendar month partition
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Next returns the following calendar month
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Before reports whether p is strictly earlier than o
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// MirrorEntry links a report to its row in a monthly sink
type MirrorEntry struct {
	ReportID      int64     `json:"report_id" db:"report_id"`
	ObjectID      string    `json:"object_id" db:"object_id"`
	RowNumber     int       `json:"row_number" db:"row_number"`
	FirstSyncedAt time.Time `json:"first_synced_at" db:"first_synced_at"`
	LastSyncedAt  time.Time `json:"last_synced_at" db:"last_synced_at"`
}

// MonthlySink is one external spreadsheet per calendar month
type MonthlySink struct {
	Year      int        `json:"year" db:"year"`
	Month     time.Month `json:"month" db:"month"`
	ObjectID  string     `json:"object_id" db:"object_id"`
	URL       string     `json:"url" db:"url"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Period returns the sink's calendar month
func (s *MonthlySink) Period() Period {
	return Period{Year: s.Year, Month: s.Month}
}

// SyncResult is the aggregate outcome of one sync run
type SyncResult struct {
	RunID            string        `json:"run_id"`
	Inserted         int           `json:"inserted"`
	Updated          int           `json:"updated"`
	Deleted          int           `json:"deleted"`
	Failed           int           `json:"failed"`
	SkippedPeriods   []string      `json:"skipped_periods,omitempty"`
	NextMonthCreated bool          `json:"next_month_created"`
	Errors           []string      `json:"errors,omitempty"`
	Duration         time.Duration `json:"-"`
	DurationMS       int64         `json:"duration_ms"`
}

// SetDuration records how long the run took
func (r *SyncResult) SetDuration(d time.Duration) {
	r.Duration = d
	r.DurationMS = d.Milliseconds()
}

// Changed reports whether the run touched any row
func (r *SyncResult) Changed() bool {
	return r.Inserted+r.Updated+r.Deleted > 0
}

// Summary renders a short human readable line for administrators
func (r *SyncResult) Summary() string {
	if !r.Changed() && r.Failed == 0 && len(r.SkippedPeriods) == 0 {
		s := "no changes"
		if r.NextMonthCreated {
			s += "; next month sheet created"
		}
		return s
	}
	s := fmt.Sprintf("inserted %d, updated %d, deleted %d", r.Inserted, r.Updated, r.Deleted)
	if r.Failed > 0 {
		s += fmt.Sprintf(", failed %d", r.Failed)
	}
	if len(r.SkippedPeriods) > 0 {
		s += fmt.Sprintf(", skipped months %v", r.SkippedPeriods)
	}
	if r.NextMonthCreated {
		s += "; next month sheet created"
	}
	return s
}

// Stats is a snapshot of the store and its mirror for administrators
type Stats struct {
	Reports      int            `json:"reports"`
	MirroredRows int            `json:"mirrored_rows"`
	Sinks        []*MonthlySink `json:"sinks"`
}
