// Package http provides the HTTP server implementation for thirdeye.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/thirdeye/internal/service"
	v1 "github.com/xiaot623/thirdeye/internal/transport/http/v1"
	"github.com/xiaot623/thirdeye/internal/transport/ws"
)

// NewServer creates and configures the HTTP server.
// It serves the v1 API, the event WebSocket and Prometheus metrics.
func NewServer(svc *service.Service, maxMessageSize int64) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	wsServer := ws.NewServer(svc.Hub(), maxMessageSize)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	e.GET("/ws", wsServer.HandleWebSocket)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}
