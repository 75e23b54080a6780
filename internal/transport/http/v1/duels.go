package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// RunDuel races provider/model pairs and returns the ranked results.
// POST /v1/duels
func (h *Handler) RunDuel(c echo.Context) error {
	var req domain.DuelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	run, err := h.service.RunDuel(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// StartBackgroundDuel launches an A/B duel.
// POST /v1/duels/background
func (h *Handler) StartBackgroundDuel(c echo.Context) error {
	var req domain.BackgroundDuelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.StartBackgroundDuel(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, resp)
}

// GetDuelStatus returns the state of a duel without leg outputs.
// GET /v1/duels/:duel_id/status
func (h *Handler) GetDuelStatus(c echo.Context) error {
	run, err := h.service.GetDuel(c.Request().Context(), c.Param("duel_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"duel_id":    run.DuelID,
		"mode":       run.Mode,
		"status":     run.Status,
		"iterations": run.Iterations,
		"summary":    run.Summary,
		"error":      run.Error,
		"updated_at": run.UpdatedAt,
	})
}

// GetDuelResults returns the full duel record.
// GET /v1/duels/:duel_id/results
func (h *Handler) GetDuelResults(c echo.Context) error {
	run, err := h.service.GetDuel(c.Request().Context(), c.Param("duel_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, run)
}
