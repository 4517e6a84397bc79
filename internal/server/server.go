package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/scenecast/scenecast/internal/broadcast"
	"github.com/scenecast/scenecast/internal/config"
	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/errors"
	"github.com/scenecast/scenecast/internal/query"
)

// sceneAdmin is the subset of the catalog the admin endpoints mutate.
type sceneAdmin interface {
	Add(ctx context.Context, scene domain.Scene) error
	Delete(ctx context.Context, sceneID int64) error
}

// dbPinger is a minimal interface for readiness checks.
type dbPinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	query     *query.Service
	hub       *broadcast.Hub
	admin     sceneAdmin
	db        dbPinger
	startTime time.Time
}

func NewServer(cfg *config.Config, querySvc *query.Service, hub *broadcast.Hub, admin sceneAdmin, db dbPinger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(errors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		query:     querySvc,
		hub:       hub,
		admin:     admin,
		db:        db,
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestLogger logs each request through slog, skipping health probes.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/readyz" || p == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("Request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
			)
			return nil
		},
	})
}
