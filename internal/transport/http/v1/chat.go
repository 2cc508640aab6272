package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nimbleworks/chatrelay/internal/domain"
	"github.com/nimbleworks/chatrelay/internal/remote"
	"github.com/nimbleworks/chatrelay/internal/service"
)

// sendRequest is the body for POST /v1/chat/send and /v1/chat/resend.
type sendRequest struct {
	SessionID   string               `json:"session_id,omitempty"`
	Content     string               `json:"content"`
	Attachments []domain.Attachment  `json:"attachments,omitempty"`
	Settings    domain.ChatSettings  `json:"settings,omitempty"`
	APIKeys     domain.CredentialSet `json:"api_keys,omitempty"`
}

// SendMessage runs the send pipeline for one user message.
// POST /v1/chat/send
func (h *Handler) SendMessage(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	result, err := h.service.SendMessage(c.Request().Context(), service.SendRequest{
		SessionID:   req.SessionID,
		Content:     req.Content,
		Attachments: req.Attachments,
		Settings:    req.Settings,
		Credentials: req.APIKeys,
	})
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

// ResendMessage reruns the pipeline for a previously failed message.
// POST /v1/chat/resend
func (h *Handler) ResendMessage(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" || req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id and content are required"})
	}

	result, err := h.service.ResendMessage(c.Request().Context(), req.SessionID, req.Content, req.Settings, req.APIKeys)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

// statusFor maps the remote failure taxonomy onto response codes. Errors
// outside the taxonomy surface as a plain bad gateway, since from the UI's
// point of view the collaborator chain broke somewhere past this process.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, remote.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, remote.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, remote.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
