// Package server exposes the duplicate finder and move orchestrator to a
// presentation layer over a local HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"smugdups/internal/dups"
	"smugdups/internal/thumbs"
)

// Server is the control API. Jobs it starts run under the context passed to
// New, not under the request that started them.
type Server struct {
	echo   *echo.Echo
	jobs   context.Context
	runner *dups.Runner
	host   dups.PhotoHost
	thumbs *thumbs.Cache
	logger dups.Logger
}

// New creates a Server with its routes registered.
func New(jobs context.Context, runner *dups.Runner, host dups.PhotoHost, cache *thumbs.Cache, logger dups.Logger) *Server {
	s := &Server{
		echo:   defineServer(logger),
		jobs:   jobs,
		runner: runner,
		host:   host,
		thumbs: cache,
		logger: logger,
	}
	s.setRoutes(s.echo)
	return s
}

func defineServer(logger dups.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/probe"
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"route", v.RoutePath,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				logger.Warn("request failed", append(args, "error", v.Error)...)
				return nil
			}
			logger.Debug("request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())

	e.Validator = &requestValidator{}
	return e
}

func (s *Server) setRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)
	e.GET("/albums", s.albumsHandler)
	e.GET("/status", s.statusHandler)
	e.POST("/scans", s.scanHandler)
	e.DELETE("/jobs/current", s.cancelHandler)
	e.GET("/groups", s.groupsHandler)
	e.PUT("/groups/:hash/keeper", s.keeperHandler)
	e.GET("/groups/:hash/images/:id/thumbnail", s.thumbnailHandler)
	e.POST("/resolutions", s.resolveHandler)
	e.GET("/report", s.reportHandler)
}

// Handler returns the API as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	s.logger.Info("control api listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
