package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/field-worklog-bot/internal/config"
	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AdminHandler handles the administrator endpoints
type AdminHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "admin").Logger(),
	}
}

// Export handles POST /v1/admin/export
// Runs one sync synchronously and returns its aggregate result.
// A client that disconnects does not stop the run.
func (h *AdminHandler) Export(c *gin.Context) {
	res, err := h.services.Scheduler.RunNow(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		if errors.Is(err, models.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "export already running"})
			return
		}
		h.log.Error().Err(err).Msg("Manual export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	h.log.Info().
		Str("run_id", res.RunID).
		Str("summary", res.Summary()).
		Msg("Manual export finished")

	c.JSON(http.StatusOK, gin.H{
		"result":             res,
		"summary":            res.Summary(),
		"next_month_created": res.NextMonthCreated,
	})
}

// Stats handles GET /v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.services.Stats.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
