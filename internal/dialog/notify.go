package dialog

import (
	"context"
	"fmt"

	"github.com/field-worklog-bot/internal/chat"
	"github.com/field-worklog-bot/internal/models"
	"github.com/rs/zerolog"
)

// Notifier announces committed changes downstream. Delivery is best effort:
// the change is already stored when it is called.
type Notifier interface {
	ReportSaved(ctx context.Context, r *models.Report)
	ReportChanged(ctx context.Context, r *models.Report, field models.Field)
	ReportDeleted(ctx context.Context, r *models.Report)
}

type nopNotifier struct{}

func (nopNotifier) ReportSaved(context.Context, *models.Report)                 {}
func (nopNotifier) ReportChanged(context.Context, *models.Report, models.Field) {}
func (nopNotifier) ReportDeleted(context.Context, *models.Report)               {}

// ChatNotifier posts changes to a fixed notification chat
type ChatNotifier struct {
	renderer *chat.Renderer
	chatID   int64
	log      zerolog.Logger
}

// NewChatNotifier returns a notifier posting to chatID; with no chat it does nothing
func NewChatNotifier(renderer *chat.Renderer, chatID int64, log zerolog.Logger) Notifier {
	if chatID == 0 {
		return nopNotifier{}
	}
	return &ChatNotifier{
		renderer: renderer,
		chatID:   chatID,
		log:      log.With().Str("component", "notifier").Logger(),
	}
}

func (n *ChatNotifier) ReportSaved(ctx context.Context, r *models.Report) {
	n.post(ctx, r, fmt.Sprintf("New report #%d by %s\n\n%s", r.ID, author(r), describe(r)))
}

func (n *ChatNotifier) ReportChanged(ctx context.Context, r *models.Report, field models.Field) {
	n.post(ctx, r, fmt.Sprintf("Report #%d by %s: %s changed to %s", r.ID, author(r), field, fieldValue(r, field)))
}

func (n *ChatNotifier) ReportDeleted(ctx context.Context, r *models.Report) {
	n.post(ctx, r, fmt.Sprintf("Report #%d by %s was deleted", r.ID, author(r)))
}

func (n *ChatNotifier) post(ctx context.Context, r *models.Report, text string) {
	if err := n.renderer.Notify(ctx, n.chatID, chat.Message{Text: text}); err != nil {
		n.log.Warn().Err(err).Int64("report_id", r.ID).Msg("Failed to post notification")
	}
}

func author(r *models.Report) string {
	if r.CreatorHandle != "" {
		return r.CreatorName + " (@" + r.CreatorHandle + ")"
	}
	return r.CreatorName
}
