package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"google.golang.org/api/googleapi"
)

// Category is a closed set of transient transport failures worth retrying
type Category int

const (
	CategoryRateLimited Category = iota + 1
	CategoryServerError
	CategoryTimeout
	CategoryConnection
)

func (c Category) String() string {
	switch c {
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryServerError:
		return "server_error"
	case CategoryTimeout:
		return "timeout"
	case CategoryConnection:
		return "connection"
	}
	return "unknown"
}

// TransientError marks a retryable remote failure
type TransientError struct {
	Category Category
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s: %v", e.Category, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RemoteOperationError is a non-retryable or retry-exhausted remote failure
type RemoteOperationError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *RemoteOperationError) Unwrap() error { return e.Err }

// Classify maps an error onto a transient category. The second result is
// false for errors that must not be retried.
func Classify(err error) (Category, bool) {
	if err == nil {
		return 0, false
	}
	// caller cancellation is never transient
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return te.Category, true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests:
			return CategoryRateLimited, true
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return CategoryServerError, true
		}
		return 0, false
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryConnection, true
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return CategoryTimeout, true
	}

	return 0, false
}
