package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetState reports the global flags: connection status, loading, and which
// session is current.
// GET /v1/state
func (h *Handler) GetState(c echo.Context) error {
	st := h.service.State()

	currentID := ""
	if current := st.CurrentSession(); current != nil {
		currentID = current.SessionID
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"connection_status":  st.ConnectionStatus(),
		"loading":            st.Loading(),
		"current_session_id": currentID,
		"session_count":      len(st.Sessions()),
	})
}

// GetConfigLogs returns the retained per-send configuration log with a
// small success/failure aggregation.
// GET /v1/analytics/config-logs
func (h *Handler) GetConfigLogs(c echo.Context) error {
	logs, err := h.service.ConfigLogs(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	succeeded := 0
	for _, entry := range logs {
		if entry.Success {
			succeeded++
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries":   logs,
		"total":     len(logs),
		"succeeded": succeeded,
		"failed":    len(logs) - succeeded,
	})
}

// TriggerSync kicks a reconciliation pass, subject to the minimum gap
// between event-driven syncs.
// POST /v1/sync
func (h *Handler) TriggerSync(c echo.Context) error {
	h.service.Notify(c.Request().Context())
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sync requested"})
}
