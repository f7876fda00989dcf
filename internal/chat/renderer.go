package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Renderer keeps a single live message per conversation: new screens
// replace the previous one in place while the transport still allows edits.
type Renderer struct {
	sender    Sender
	registry  Registry
	editLimit time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewRenderer creates a renderer; editLimit is how long after sending a message stays editable
func NewRenderer(sender Sender, registry Registry, editLimit time.Duration, log zerolog.Logger) *Renderer {
	return &Renderer{
		sender:    sender,
		registry:  registry,
		editLimit: editLimit,
		now:       time.Now,
		log:       log.With().Str("component", "renderer").Logger(),
	}
}

// SetClock replaces the time source
func (r *Renderer) SetClock(now func() time.Time) {
	r.now = now
}

// Render edits the conversation's last message if it is still editable,
// otherwise sends a new one and records it
func (r *Renderer) Render(ctx context.Context, key Key, msg Message) (Handle, error) {
	h, ok, err := r.registry.Get(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key.String()).Msg("Render registry lookup failed")
	}
	if ok && r.now().Sub(h.SentAt) < r.editLimit {
		err := r.sender.Edit(ctx, h.ChatID, h.MessageID, msg)
		if err == nil {
			return h, nil
		}
		r.log.Debug().Err(err).Int64("message_id", h.MessageID).Msg("Edit failed, sending new message")
	}
	return r.send(ctx, key, msg)
}

// SendNew always sends a new message; the previous one is left as it is and
// no longer edited
func (r *Renderer) SendNew(ctx context.Context, key Key, msg Message) (Handle, error) {
	if err := r.registry.Forget(ctx, key); err != nil {
		r.log.Warn().Err(err).Str("key", key.String()).Msg("Failed to retire render handle")
	}
	return r.send(ctx, key, msg)
}

// Notify posts a standalone message outside any conversation
func (r *Renderer) Notify(ctx context.Context, chatID int64, msg Message) error {
	_, err := r.sender.Send(ctx, chatID, msg)
	return err
}

func (r *Renderer) send(ctx context.Context, key Key, msg Message) (Handle, error) {
	id, err := r.sender.Send(ctx, key.ChatID, msg)
	if err != nil {
		return Handle{}, err
	}
	h := Handle{ChatID: key.ChatID, MessageID: id, SentAt: r.now()}
	if err := r.registry.Put(ctx, key, h); err != nil {
		r.log.Warn().Err(err).Str("key", key.String()).Msg("Failed to record render handle")
	}
	return h, nil
}
