// Package server provides the HTTP surface of specd.
//
// It exposes a health check, Prometheus metrics, and the extraction
// endpoint, with graceful context-aware shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/config"
	"github.com/fyrsmithlabs/specd/internal/pipeline"
	"github.com/fyrsmithlabs/specd/internal/retrieval"
	"github.com/fyrsmithlabs/specd/internal/schema"
)

// isCallerError reports whether err is the caller's fault and should
// map to a 4xx status.
func isCallerError(err error) bool {
	return errors.Is(err, pipeline.ErrInvalidRequest) || errors.Is(err, schema.ErrUnknownType)
}

// Extractor runs one extraction request. Satisfied by
// *pipeline.Service.
type Extractor interface {
	Extract(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server represents the HTTP server.
type Server struct {
	config    config.ServerConfig
	echo      *echo.Echo
	extractor Extractor
	logger    *zap.Logger
}

// HealthResponse is the JSON response for the /health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// errorResponse is the JSON error body for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

// New creates a new HTTP server.
//
// Routes:
//   - GET  /health
//   - GET  /metrics
//   - POST /api/v1/extract
func New(cfg config.ServerConfig, extractor Extractor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		config:    cfg,
		echo:      e,
		extractor: extractor,
		logger:    logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/api/v1/extract", s.handleExtract)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "specd",
	})
}

// handleExtract runs the extraction pipeline for a posted request.
//
// Status mapping: bad request body or no valid extraction types is 400,
// a codebase that was never indexed is 404, an unreachable document
// source is 502, anything else is 500.
func (s *Server) handleExtract(c echo.Context) error {
	var req pipeline.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	result, err := s.extractor.Extract(c.Request().Context(), req)
	if err != nil {
		s.logger.Error("extraction request failed",
			zap.String("codebase", req.Codebase),
			zap.Error(err))

		switch {
		case errors.Is(err, retrieval.ErrCollectionNotFound):
			return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		case pipeline.IsSourceUnavailable(err):
			return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		case isCallerError(err):
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
	}

	return c.JSON(http.StatusOK, result)
}

// Start starts the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully within the configured timeout.
// Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
