// Package v1 provides the local HTTP API consumed by UI collaborators.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nimbleworks/chatrelay/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat API
	e.POST("/v1/chat/send", h.SendMessage)
	e.POST("/v1/chat/resend", h.ResendMessage)

	// Session API
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.PUT("/v1/sessions/:session_id/title", h.RenameSession)
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)

	// Credentials
	e.PUT("/v1/credentials/:provider", h.SetCredential)

	// State and analytics
	e.GET("/v1/state", h.GetState)
	e.GET("/v1/analytics/config-logs", h.GetConfigLogs)
	e.POST("/v1/sync", h.TriggerSync)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
