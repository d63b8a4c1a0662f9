// Package web exposes the HTTP surface of the service: the health and
// metrics endpoints, the NFL data API, and the circuit breaker admin routes.
package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gtonic/nfl-mcp-sub001/internal/fetch"
	"github.com/gtonic/nfl-mcp-sub001/internal/health"
	"github.com/gtonic/nfl-mcp-sub001/internal/metrics"
	"github.com/gtonic/nfl-mcp-sub001/internal/resilience"
)

// Server is the HTTP server of the service
type Server struct {
	addr      string
	router    *gin.Engine
	collector *metrics.Collector
	checker   *health.Checker
	breakers  *resilience.Registry
	fetcher   *fetch.Client
	logger    *logrus.Logger
	server    *http.Server
	mu        sync.RWMutex
}

// NewServer creates the HTTP server and wires up middleware and routes
func NewServer(
	addr string,
	collector *metrics.Collector,
	checker *health.Checker,
	breakers *resilience.Registry,
	fetcher *fetch.Client,
	logger *logrus.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		addr:      addr,
		router:    router,
		collector: collector,
		checker:   checker,
		breakers:  breakers,
		fetcher:   fetcher,
		logger:    logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware sets up the middleware
func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryHandler(s.logger))
	s.router.Use(RequestLogging(s.logger, s.collector))
}

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", s.prometheusHandler)

	api := s.router.Group("/api")
	{
		api.GET("/metrics", s.metricsHandler)

		api.GET("/news", s.newsHandler)
		api.GET("/teams", s.teamsHandler)
		api.GET("/teams/:team/schedule", s.scheduleHandler)
		api.GET("/teams/:team/snap-counts", s.snapCountsHandler)
		api.GET("/standings", s.standingsHandler)

		api.GET("/circuit-breakers", s.breakersHandler)
		api.POST("/circuit-breakers/:name/reset", s.breakerResetHandler)
	}
}

// Handler returns the underlying handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.WithField("addr", s.addr).Info("Starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
