package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// Submit runs a task through its flow, or a single eye when eye is set.
// POST /v1/pipeline/submit
func (h *Handler) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.Eye == "" {
		if req.Task == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "task or eye is required"})
		}
		result, err := h.service.Submit(ctx, req.SessionID, req.Task)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, result)
	}

	resp, err := h.service.RunEye(ctx, req)
	if err != nil {
		return errorResponse(c, err)
	}
	if resp.Violation != nil {
		return violationResponse(c, resp.Violation)
	}
	return c.JSON(http.StatusOK, resp.Envelope)
}

// Analyze classifies a task and recommends a flow.
// POST /v1/pipeline/analyze
func (h *Handler) Analyze(c echo.Context) error {
	var req domain.AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	decision, err := h.service.Analyze(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, decision)
}

// Rerun re-executes a completed eye as a supervised override.
// POST /v1/pipeline/rerun
func (h *Handler) Rerun(c echo.Context) error {
	var req domain.RerunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.Rerun(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	if resp.Violation != nil {
		return violationResponse(c, resp.Violation)
	}
	return c.JSON(http.StatusOK, resp.Envelope)
}
