// Package api provides the HTTP surface: the JSON envelope API and the
// WebSocket live-update channel. Every response carries the same envelope
// with success flag, message, payload, and request metadata.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/dshills/ctxtrack-mcp/internal/analytics"
	"github.com/dshills/ctxtrack-mcp/internal/manager"
	"github.com/dshills/ctxtrack-mcp/internal/search"
	"github.com/dshills/ctxtrack-mcp/internal/store"
)

// apiVersion is reported in every response's metadata block.
const apiVersion = "2.0"

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	mgr       *manager.Manager
	searcher  *search.Engine
	analytics *analytics.Engine
	logger    *zap.Logger
	config    *Config
}

// NewServer creates the HTTP server over a wired manager.
func NewServer(mgr *manager.Manager, searcher *search.Engine, an *analytics.Engine, logger *zap.Logger, cfg *Config) (*Server, error) {
	if mgr == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8700}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		mgr:       mgr,
		searcher:  searcher,
		analytics: an,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	s.echo.GET("/projects", s.handleListProjects)
	s.echo.GET("/project/:name", s.handleGetProject)
	s.echo.GET("/project/:name/export", s.handleExport)

	s.echo.POST("/project/:name/update", s.handleUpdate)
	s.echo.POST("/project/:name/set-goal", s.handleSetGoal)
	s.echo.POST("/project/:name/complete-feature", s.handleCompleteFeature)
	s.echo.POST("/project/:name/add-issue", s.handleAddIssue)
	s.echo.POST("/project/:name/resolve-issue", s.handleResolveIssue)
	s.echo.POST("/project/:name/add-step", s.handleAddStep)
	s.echo.POST("/project/:name/add-key-file", s.handleAddKeyFile)
	s.echo.POST("/project/:name/add-anchor", s.handleAddAnchor)

	s.echo.GET("/search", s.handleSearch)
	s.echo.POST("/search/advanced", s.handleSearchAdvanced)

	s.echo.GET("/analytics/project/:name", s.handleProjectAnalytics)
	s.echo.GET("/analytics/overview", s.handleAnalyticsOverview)

	s.echo.GET("/ws", s.handleWS)
}

// Metadata rides on every envelope.
type Metadata struct {
	Version     string    `json:"version"`
	StorageType string    `json:"storage_type"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
}

// Envelope is the uniform response shape.
type Envelope struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Data     any      `json:"data,omitempty"`
	Metadata Metadata `json:"metadata"`
}

func (s *Server) metadata(c echo.Context) Metadata {
	return Metadata{
		Version:     apiVersion,
		StorageType: s.mgr.BackendKind(),
		Timestamp:   time.Now().UTC(),
		RequestID:   c.Response().Header().Get(echo.HeaderXRequestID),
	}
}

// ok writes a success envelope.
func (s *Server) ok(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, Envelope{
		Success:  true,
		Message:  message,
		Data:     data,
		Metadata: s.metadata(c),
	})
}

// fail maps a domain error to its status code and writes a failure
// envelope.
func (s *Server) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err))
	}
	return c.JSON(status, Envelope{
		Success:  false,
		Message:  err.Error(),
		Metadata: s.metadata(c),
	})
}

// failMsg writes a failure envelope with an explicit status and message.
func (s *Server) failMsg(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{
		Success:  false,
		Message:  message,
		Metadata: s.metadata(c),
	})
}

// statusFor maps store errors onto stable HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrIssueNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, store.ErrPoolExhausted), errors.Is(err, store.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
