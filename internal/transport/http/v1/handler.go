// Package v1 provides the HTTP handlers for the v1 API.
package v1

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/service"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

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

// RegisterRoutes registers the v1 routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Pipeline API
	e.POST("/v1/pipeline/submit", h.Submit)
	e.POST("/v1/pipeline/analyze", h.Analyze)
	e.POST("/v1/pipeline/rerun", h.Rerun)

	// Session API
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.DELETE("/v1/sessions", h.CleanupSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.GET("/v1/sessions/:session_id/status", h.GetStatus)
	e.GET("/v1/sessions/:session_id/events", h.GetSessionEvents)
	e.POST("/v1/sessions/:session_id/context", h.AddContext)
	e.DELETE("/v1/sessions/:session_id/context/:key", h.RemoveContext)
	e.POST("/v1/sessions/:session_id/kill", h.KillSession)
	e.POST("/v1/sessions/:session_id/complete", h.CompleteSession)

	// Duel API
	e.POST("/v1/duels", h.RunDuel)
	e.POST("/v1/duels/background", h.StartBackgroundDuel)
	e.GET("/v1/duels/:duel_id/status", h.GetDuelStatus)
	e.GET("/v1/duels/:duel_id/results", h.GetDuelResults)

	// Settings API
	e.GET("/v1/routing", h.ListRouting)
	e.GET("/v1/routing/:eye", h.GetRouting)
	e.PUT("/v1/routing/:eye", h.PutRouting)
	e.GET("/v1/personas/:eye", h.GetPersonas)
	e.PUT("/v1/personas/:eye", h.PutPersona)
	e.GET("/v1/routes", h.ListRoutes)
	e.PUT("/v1/routes/:name", h.PutRoute)
	e.GET("/v1/eyes", h.ListEyes)
	e.GET("/v1/providers/:provider/models", h.ListProviderModels)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// violationResponse renders an order violation or admission block.
func violationResponse(c echo.Context, v *domain.Violation) error {
	status := http.StatusBadRequest
	if v.Blocked {
		status = http.StatusForbidden
	}
	return c.JSON(status, map[string]interface{}{
		"error":     "order_violation",
		"violation": v,
	})
}

// errorResponse maps service errors onto status codes.
func errorResponse(c echo.Context, err error) error {
	var configErr *domain.ConfigError
	var providerErr *domain.ProviderError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &configErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &providerErr):
		status = http.StatusBadGateway
	default:
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
