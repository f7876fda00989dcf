package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/field-worklog-bot/internal/models"
	"github.com/rs/zerolog"
)

// scheduler triggers sync runs on a fixed cadence
type scheduler struct {
	sync     SyncService
	interval time.Duration
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewScheduler creates the periodic trigger
func NewScheduler(syncSvc SyncService, interval time.Duration, log zerolog.Logger) SchedulerService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &scheduler{
		sync:     syncSvc,
		interval: interval,
		log:      log.With().Str("service", "scheduler").Logger(),
	}
}

// StartProcessor blocks, running a sync on every tick until stopped
func (s *scheduler) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.log.Info().Dur("interval", s.interval).Msg("Sync scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("Sync scheduler stopping")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// StopProcessor stops the loop and waits for an in-flight run
func (s *scheduler) StopProcessor() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log.Info().Msg("Sync scheduler stopped")
}

// RunNow runs one sync synchronously
func (s *scheduler) RunNow(ctx context.Context) (*models.SyncResult, error) {
	return s.safeRun(ctx)
}

// tick runs one scheduled sync; failures are logged and the loop goes on
func (s *scheduler) tick() {
	// stopping waits for the run rather than cutting it short
	res, err := s.safeRun(context.WithoutCancel(s.ctx))
	switch {
	case IsInProgress(err):
		s.log.Info().Msg("Previous sync still running, tick skipped")
	case err != nil:
		s.log.Error().Err(err).Msg("Scheduled sync failed")
	default:
		s.log.Info().Str("run_id", res.RunID).Str("summary", res.Summary()).Msg("Scheduled sync finished")
	}
}

// safeRun keeps a panicking run from taking the process down
func (s *scheduler) safeRun(ctx context.Context) (res *models.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Sync run panicked - recovered")
			res, err = nil, fmt.Errorf("sync run panicked: %v", r)
		}
	}()
	return s.sync.Run(ctx)
}
