package dialog

import (
	"context"
	"errors"
	"time"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/obs"
	"github.com/rs/zerolog"
)

// ErrLoopBusy is returned by Submit when the event buffer is full
var ErrLoopBusy = errors.New("dialog event buffer is full")

// Loop feeds events to the state machine one at a time
type Loop struct {
	machine *Machine
	events  chan *models.ChatEvent
	log     zerolog.Logger
}

// NewLoop creates a loop buffering up to buffer pending events
func NewLoop(machine *Machine, buffer int, log zerolog.Logger) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		machine: machine,
		events:  make(chan *models.ChatEvent, buffer),
		log:     log.With().Str("component", "dialog_loop").Logger(),
	}
}

// Submit queues an event without blocking
func (l *Loop) Submit(ev *models.ChatEvent) error {
	select {
	case l.events <- ev:
		return nil
	default:
		return ErrLoopBusy
	}
}

// Run handles queued events until ctx is cancelled
func (l *Loop) Run(ctx context.Context) {
	l.log.Info().Msg("Dialog loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("Dialog loop stopped")
			return
		case ev := <-l.events:
			l.handle(ctx, ev)
		}
	}
}

func (l *Loop) handle(ctx context.Context, ev *models.ChatEvent) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			obs.ChatEvent("panic")
			l.log.Error().Interface("panic", r).Int64("chat_id", ev.ChatID).Int64("user_id", ev.UserID).Msg("Event handler panicked - recovered")
		}
	}()

	if err := l.machine.Handle(ctx, ev); err != nil {
		obs.ChatEvent("failed")
		l.log.Error().Err(err).Int64("chat_id", ev.ChatID).Int64("user_id", ev.UserID).Msg("Failed to handle chat event")
		return
	}
	obs.ChatEvent("handled")
	l.log.Debug().
		Int64("chat_id", ev.ChatID).
		Int64("user_id", ev.UserID).
		Dur("duration", time.Since(start)).
		Msg("Chat event handled")
}
