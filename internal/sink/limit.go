package sink

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type limited struct {
	next Sink
	lim  *rate.Limiter
}

// WithRateLimit spaces out write calls to stay within a per-minute quota.
// Reads are not limited.
func WithRateLimit(s Sink, writesPerMinute int) Sink {
	if writesPerMinute <= 0 {
		return s
	}
	burst := writesPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &limited{
		next: s,
		lim:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(writesPerMinute)), burst),
	}
}

func (l *limited) CreateObject(ctx context.Context, name, parent string) (Object, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return Object{}, err
	}
	return l.next.CreateObject(ctx, name, parent)
}

func (l *limited) WriteHeader(ctx context.Context, id string, header []string) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.next.WriteHeader(ctx, id, header)
}

func (l *limited) ReadRange(ctx context.Context, id, a1 string) ([][]string, error) {
	return l.next.ReadRange(ctx, id, a1)
}

func (l *limited) WriteRange(ctx context.Context, id, a1 string, rows [][]string) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.next.WriteRange(ctx, id, a1, rows)
}

func (l *limited) DeleteRows(ctx context.Context, id string, start, end int) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.next.DeleteRows(ctx, id, start, end)
}

func (l *limited) Rename(ctx context.Context, id, name string) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.next.Rename(ctx, id, name)
}
