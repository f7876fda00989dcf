package models

import (
	"errors"
	"fmt"
)

var (
	ErrDailyCapExceeded = errors.New("daily hours cap exceeded")
	ErrReportNotFound   = errors.New("report not found")
	ErrSyncInProgress   = errors.New("sync run already in progress")
	ErrSyncLockLost     = errors.New("sync lock lost")
)

// ValidationError is a local constraint violation. It is always recovered by
// re-rendering the prompt with Message as guidance.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// OwnershipError denies an edit or delete outside ownership or the recency window
type OwnershipError struct {
	ReportID int64
	Reason   string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("report %d: %s", e.ReportID, e.Reason)
}

// StateLossError is raised for an event that has no matching session
type StateLossError struct {
	ChatID int64
	UserID int64
}

func (e *StateLossError) Error() string {
	return fmt.Sprintf("no session for chat %d user %d", e.ChatID, e.UserID)
}

// CapError carries the remaining allowance when the daily cap would be exceeded
type CapError struct {
	Remaining int
}

func (e *CapError) Error() string {
	return fmt.Sprintf("%v: at most %d hours left", ErrDailyCapExceeded, e.Remaining)
}

func (e *CapError) Unwrap() error { return ErrDailyCapExceeded }
