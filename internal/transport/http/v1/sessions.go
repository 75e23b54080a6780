package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// CreateSession creates a session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req domain.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	session, err := h.service.CreateSession(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// ListSessions lists recent sessions.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	sessions, err := h.service.ListSessions(c.Request().Context(), limit)
	if err != nil {
		return errorResponse(c, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession returns a session.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// GetStatus returns a session with its pipeline progress.
// GET /v1/sessions/:session_id/status
func (h *Handler) GetStatus(c echo.Context) error {
	status, err := h.service.Status(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// GetSessionEvents returns persisted events for a session.
// GET /v1/sessions/:session_id/events
func (h *Handler) GetSessionEvents(c echo.Context) error {
	var after int64
	if v := c.QueryParam("after_ts"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid after_ts"})
		}
		after = n
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	events, err := h.service.ListEvents(c.Request().Context(), c.Param("session_id"), after, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}

// AddContext adds or replaces a context entry.
// POST /v1/sessions/:session_id/context
func (h *Handler) AddContext(c echo.Context) error {
	var req domain.AddContextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Key == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "key is required"})
	}

	if err := h.service.AddContext(c.Request().Context(), c.Param("session_id"), req); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// RemoveContext deletes a context entry.
// DELETE /v1/sessions/:session_id/context/:key
func (h *Handler) RemoveContext(c echo.Context) error {
	if err := h.service.RemoveContext(c.Request().Context(), c.Param("session_id"), c.Param("key")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// KillSession blocks further eye invocations for a session.
// POST /v1/sessions/:session_id/kill
func (h *Handler) KillSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if err := h.service.KillSession(c.Request().Context(), sessionID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"status":     domain.SessionStatusKilled,
	})
}

// CompleteSession marks a session completed.
// POST /v1/sessions/:session_id/complete
func (h *Handler) CompleteSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if err := h.service.CompleteSession(c.Request().Context(), sessionID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"status":     domain.SessionStatusCompleted,
	})
}

// CleanupSessions deletes sessions created before a cutoff.
// DELETE /v1/sessions?before=RFC3339
func (h *Handler) CleanupSessions(c echo.Context) error {
	before, err := time.Parse(time.RFC3339, c.QueryParam("before"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "before must be an RFC3339 timestamp"})
	}

	deleted, err := h.service.CleanupSessions(c.Request().Context(), before)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": deleted})
}
