package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/field-worklog-bot/internal/models"
	"github.com/rs/zerolog"
)

// Locker grants single-flight execution of a sync run. TryLock fails with
// models.ErrSyncInProgress while another run holds the lock. The returned
// context is cancelled with models.ErrSyncLockLost if the lock is lost
// before unlock is called.
type Locker interface {
	TryLock(ctx context.Context) (held context.Context, unlock func(), err error)
}

// LocalLocker serializes runs within one process
type LocalLocker struct {
	mu sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) TryLock(ctx context.Context) (context.Context, func(), error) {
	if !l.mu.TryLock() {
		return nil, nil, models.ErrSyncInProgress
	}
	held, cancel := context.WithCancel(ctx)
	var once sync.Once
	return held, func() {
		once.Do(func() {
			cancel()
			l.mu.Unlock()
		})
	}, nil
}

// RedisLocker serializes runs across replicas. The lock is refreshed while
// held so a long run does not lose it.
type RedisLocker struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisLocker(client *redislock.Client, key string, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    log.With().Str("component", "sync_lock").Logger(),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context) (context.Context, func(), error) {
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, nil, models.ErrSyncInProgress
	}
	if err != nil {
		return nil, nil, err
	}

	held, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// the next tick would come too late, so one failed refresh means the lock is gone
				if err := lock.Refresh(context.Background(), l.ttl, nil); err != nil {
					l.log.Error().Err(err).Str("key", l.key).Msg("Failed to refresh sync lock, stopping run")
					cancel(models.ErrSyncLockLost)
					return
				}
			}
		}
	}()

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(done)
			cancel(nil)
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.log.Warn().Err(err).Str("key", l.key).Msg("Failed to release sync lock")
			}
		})
	}, nil
}
