// Package api exposes the admission pipeline over JSON HTTP.
package api

import (
	"context"
	"net/http"

	"admission-workers/internal/admission"
	"admission-workers/internal/common/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck = func(ctx context.Context) error

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Pipeline       *admission.Pipeline
		ReadyChecks    map[string]ReadyCheck
		Logger         logger.Logger
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(middleware.Recover())
	s.app.Use(middleware.RequestID())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger)

	s.app.GET("/health", s.health)
	s.app.GET("/ready", s.ready)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	registerAdmissionAPI(s.app, s.opts.Pipeline)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "healthy"})
}

func (s *server) ready(ctx echo.Context) error {
	failed := echo.Map{}
	for name, check := range s.opts.ReadyChecks {
		if err := check(ctx.Request().Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not ready", "checks": failed})
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ready"})
}
