package sink

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Policy bounds retries by attempt count
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// OnRetry is called before each sleep; used for metrics
	OnRetry func(op string, category Category)

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

// DefaultPolicy is five attempts starting at one second, capped at thirty
func DefaultPolicy() Policy {
	return Policy{Attempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Backoff returns the delay before the given retry (1-based): base * 2^(n-1)
// capped at MaxDelay, plus up to half of that again as jitter
func (p Policy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(retry-1)))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	jitter := p.jitter
	if jitter == nil {
		jitter = rand.Int63n
	}
	if half := int64(delay / 2); half > 0 {
		delay += time.Duration(jitter(half))
	}
	return delay
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempts are exhausted. Failures come back as *RemoteOperationError.
func (p Policy) Do(ctx context.Context, op string, log zerolog.Logger, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		category, transient := Classify(err)
		if !transient || ctx.Err() != nil {
			return &RemoteOperationError{Op: op, Attempts: attempt, Err: err}
		}
		if attempt == attempts {
			break
		}

		delay := p.Backoff(attempt)
		log.Warn().
			Err(err).
			Str("op", op).
			Str("category", category.String()).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Transient sink error, retrying")
		if p.OnRetry != nil {
			p.OnRetry(op, category)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return &RemoteOperationError{Op: op, Attempts: attempt, Err: err}
		}
	}

	return &RemoteOperationError{Op: op, Attempts: attempts, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retrying struct {
	next   Sink
	policy Policy
	log    zerolog.Logger
}

// WithRetry wraps every remote call of s with the retry policy
func WithRetry(s Sink, policy Policy, log zerolog.Logger) Sink {
	return &retrying{next: s, policy: policy, log: log.With().Str("component", "sink_retry").Logger()}
}

func (r *retrying) CreateObject(ctx context.Context, name, parent string) (Object, error) {
	var obj Object
	err := r.policy.Do(ctx, "create_object", r.log, func() error {
		var err error
		obj, err = r.next.CreateObject(ctx, name, parent)
		return err
	})
	return obj, err
}

func (r *retrying) WriteHeader(ctx context.Context, id string, header []string) error {
	return r.policy.Do(ctx, "write_header", r.log, func() error {
		return r.next.WriteHeader(ctx, id, header)
	})
}

func (r *retrying) ReadRange(ctx context.Context, id, a1 string) ([][]string, error) {
	var rows [][]string
	err := r.policy.Do(ctx, "read_range", r.log, func() error {
		var err error
		rows, err = r.next.ReadRange(ctx, id, a1)
		return err
	})
	return rows, err
}

func (r *retrying) WriteRange(ctx context.Context, id, a1 string, rows [][]string) error {
	return r.policy.Do(ctx, "write_range", r.log, func() error {
		return r.next.WriteRange(ctx, id, a1, rows)
	})
}

func (r *retrying) DeleteRows(ctx context.Context, id string, start, end int) error {
	return r.policy.Do(ctx, "delete_rows", r.log, func() error {
		return r.next.DeleteRows(ctx, id, start, end)
	})
}

func (r *retrying) Rename(ctx context.Context, id, name string) error {
	return r.policy.Do(ctx, "rename", r.log, func() error {
		return r.next.Rename(ctx, id, name)
	})
}
