// Package http provides the HTTP API for recordd.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recordd/internal/auth"
	"github.com/fyrsmithlabs/recordd/internal/services"
)

// Server provides HTTP endpoints for recordd.
type Server struct {
	echo     *echo.Echo
	services services.Registry
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(reg services.Registry, resolver *auth.Resolver, logger *zap.Logger, cfg *Config) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("service registry is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("auth resolver is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
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
		echo:     e,
		services: reg,
		logger:   logger,
		config:   cfg,
	}

	e.HTTPErrorHandler = s.handleError

	s.registerRoutes(resolver)

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(resolver *auth.Resolver) {
	// Health check
	s.echo.GET("/health", s.handleHealth)

	// Authenticated API routes
	api := s.echo.Group("/api", auth.Middleware(resolver))

	api.POST("/models", s.handleCreateModel)
	api.GET("/models", s.handleListModels)
	api.GET("/models/:model_id", s.handleGetModel)
	api.PUT("/models/:model_id", s.handleUpdateModel)
	api.DELETE("/models/:model_id", s.handleDeleteModel)

	api.POST("/data/:model_id", s.handleCreateRecords)
	api.GET("/data/:model_id", s.handleListRecords)
	api.PUT("/data/:model_id", s.handleBulkUpdateRecords)
	api.POST("/data/:model_id/search", s.handleSearchRecords)
	api.GET("/data/:model_id/:record_id", s.handleGetRecord)
	api.PUT("/data/:model_id/:record_id", s.handleUpdateRecord)
	api.DELETE("/data/:model_id/:record_id", s.handleDeleteRecord)
}

// Echo exposes the underlying router so the caller can register
// auxiliary endpoints such as /metrics.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
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
