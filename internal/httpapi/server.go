// Package httpapi provides the optional HTTP sidecar for recalld.
//
// The MCP protocol runs on stdio; this server only exposes operational
// endpoints: liveness, readiness, and Prometheus metrics.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/vectorindex"
)

// Server provides HTTP endpoints for recalld.
type Server struct {
	echo   *echo.Echo
	index  vectorindex.Index
	logger *zap.Logger
	config Config
}

// Config holds HTTP server configuration.
type Config struct {
	// Addr is the listen address. Default: ":9090"
	Addr string

	// ReadyTimeout caps the index probe behind /ready. Default: 2s
	ReadyTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":9090"
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 2 * time.Second
	}
}

// NewServer creates the HTTP sidecar.
func NewServer(index vectorindex.Index, logger *zap.Logger, cfg Config) (*Server, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		index:  index,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response body for GET /ready.
type ReadyResponse struct {
	Status    string `json:"status"`
	Provider  string `json:"provider,omitempty"`
	Documents int    `json:"documents,omitempty"`
	Records   int    `json:"records,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleHealth reports process liveness only.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady probes the vector index so orchestrators can tell a running
// process from one whose backend is unreachable.
func (s *Server) handleReady(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.ReadyTimeout)
	defer cancel()

	stats, err := s.index.Stats(ctx, vectorindex.DefaultNamespace)
	if err != nil {
		s.logger.Warn("readiness probe failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status: "unavailable",
			Error:  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, ReadyResponse{
		Status:    "ok",
		Provider:  stats.Provider,
		Documents: stats.Documents,
		Records:   stats.Records,
	})
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
