package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/field-worklog-bot/internal/config"
	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/obs"
	"github.com/field-worklog-bot/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// EventQueue accepts inbound chat events for the dialog loop
type EventQueue interface {
	Submit(ev *models.ChatEvent) error
}

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, events EventQueue, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(obs.GinMiddleware())

	// Handlers
	chatHandler := NewChatHandler(events, log)
	adminHandler := NewAdminHandler(services, cfg, log)

	// Health check
	router.GET("/health", healthCheck)
	router.GET("/metrics", gin.WrapH(obs.Handler()))

	// API v1
	v1 := router.Group("/v1")
	{
		// Chat gateway webhook
		v1.POST("/chat/events", chatHandler.ReceiveEvent)

		// Admin endpoints
		admin := v1.Group("/admin", adminAuth(cfg.Server.AdminToken))
		{
			admin.POST("/export", adminHandler.Export)
			admin.GET("/stats", adminHandler.Stats)
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "field-worklog-bot",
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Debug()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// adminAuth requires the static bearer token; without a configured token the admin API is closed
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API is disabled"})
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

