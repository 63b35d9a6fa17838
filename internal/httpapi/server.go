// Package httpapi exposes the document service over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/lifecycle"
)

// headerAPIKey carries the caller credential.
const headerAPIKey = "X-API-Key"

// Ingestor is the document catalog surface consumed by the HTTP layer.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	Delete(ctx context.Context, documentID string) error
	List(ctx context.Context, credential string) ([]document.Metadata, error)
}

// Answerer runs retrieval-augmented queries.
type Answerer interface {
	Answer(ctx context.Context, query, documentID, credential string) (string, error)
}

// SweepRunner triggers a lifecycle sweep on demand.
type SweepRunner interface {
	Sweep(ctx context.Context) (*lifecycle.Report, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// DevMode includes underlying error causes in responses.
	DevMode bool
}

// Server provides the HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	ingestor Ingestor
	answerer Answerer
	sweeper  SweepRunner
	logger   *zap.Logger
	config   *Config
}

// NewServer creates the HTTP server.
func NewServer(ingestor Ingestor, answerer Answerer, sweeper SweepRunner, logger *zap.Logger, cfg *Config) (*Server, error) {
	if ingestor == nil || answerer == nil || sweeper == nil {
		return nil, fmt.Errorf("ingestor, answerer and sweeper are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
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
		echo:     e,
		ingestor: ingestor,
		answerer: answerer,
		sweeper:  sweeper,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleIngest)
	v1.GET("/documents", s.handleList)
	v1.DELETE("/documents/:id", s.handleDelete)
	v1.POST("/documents/:id/query", s.handleQuery)
	v1.POST("/admin/sweep", s.handleSweep)
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

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
