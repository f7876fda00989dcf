package api

import (
	"errors"
	"net/http"

	"github.com/field-worklog-bot/internal/dialog"
	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ChatHandler receives events pushed by the chat gateway
type ChatHandler struct {
	events    EventQueue
	validator *validation.Validator
	log       zerolog.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(events EventQueue, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		events:    events,
		validator: validation.NewValidator(),
		log:       log.With().Str("handler", "chat").Logger(),
	}
}

// ReceiveEvent handles POST /v1/chat/events
// The event is queued for the dialog loop; the reply goes out through the gateway
func (h *ChatHandler) ReceiveEvent(c *gin.Context) {
	var ev models.ChatEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if errs := h.validator.ValidateEvent(&ev); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid event", "details": errs})
		return
	}

	if err := h.events.Submit(&ev); err != nil {
		if errors.Is(err, dialog.ErrLoopBusy) {
			h.log.Warn().Int64("chat_id", ev.ChatID).Msg("Dialog loop busy, event rejected")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many pending events, retry later"})
			return
		}
		h.log.Error().Err(err).Msg("Failed to queue chat event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue event"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
