package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nimbleworks/chatrelay/internal/service"
)

// ListSessions returns all known sessions, most recent first.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions := h.service.ListSessions(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// GetSession opens a session, making it current and loading its messages.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	session, err := h.service.OpenSession(c.Request().Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, session)
}

// GetSessionMessages returns a session's messages in order.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")
	messages := h.service.State().Messages(sessionID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// DeleteSession removes a session locally and remotely.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	if err := h.service.DeleteSession(c.Request().Context(), sessionID); err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// renameRequest is the body for PUT /v1/sessions/:session_id/title.
type renameRequest struct {
	Title string `json:"title"`
}

// RenameSession updates a session's title.
// PUT /v1/sessions/:session_id/title
func (h *Handler) RenameSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}

	if err := h.service.RenameSession(c.Request().Context(), sessionID, req.Title); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
