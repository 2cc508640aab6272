package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// credentialRequest is the body for PUT /v1/credentials/:provider.
type credentialRequest struct {
	Key string `json:"key"`
}

// SetCredential stores one provider credential with the backend.
// PUT /v1/credentials/:provider
func (h *Handler) SetCredential(c echo.Context) error {
	provider := c.Param("provider")

	var req credentialRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Key == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "key is required"})
	}

	if err := h.service.StoreAPIKey(c.Request().Context(), provider, req.Key); err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
