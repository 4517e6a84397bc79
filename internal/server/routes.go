package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/healthz", s.handleLiveness)
	s.echo.GET("/readyz", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Read API
	s.echo.GET("/api/targets", s.handleTargets)

	// Admin mutations: every change to the catalog triggers a broadcast
	s.echo.POST("/api/scenes", s.handleAddScene)
	s.echo.DELETE("/api/scenes/:id", s.handleDeleteScene)

	// Subscriber stream
	s.echo.GET("/ws", s.handleWebSocket)
}
