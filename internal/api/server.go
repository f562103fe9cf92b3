// Package api serves the interaction engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/history"
	"github.com/pharmds-ddi-server/internal/metrics"
	"github.com/pharmds-ddi-server/internal/middleware"
	"github.com/pharmds-ddi-server/internal/service"
	"github.com/pharmds-ddi-server/internal/snapshot"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Dependencies are the services the HTTP server exposes. History and
// Metrics are optional.
type Dependencies struct {
	Engine    *service.Engine
	Snapshots *snapshot.Store
	History   history.Store
	Metrics   *metrics.Collector
}

// Server represents the HTTP server
type Server struct {
	cfg     *domain.Config
	deps    Dependencies
	log     *logrus.Logger
	router  *gin.Engine
	server  *http.Server
	started time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, deps Dependencies, logger *logrus.Logger) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AuditLogger(logger))
	if deps.Metrics != nil && cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     logger,
		router:  router,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil && s.cfg.Metrics.Enabled {
		s.router.GET(s.cfg.Metrics.Path, gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	// The stream is long-lived, so it sits outside the timeout and rate limit.
	v1.GET("/snapshots/stream", s.handleSnapshotStream)

	limited := v1.Group("")
	limited.Use(middleware.RateLimit(s.cfg.RateLimit))
	limited.Use(middleware.RequestTimeout(s.cfg.Server.RequestTimeout))
	{
		limited.POST("/interactions", s.handleCheckInteractions)

		limited.GET("/drugs/resolve", s.handleResolveDrug)
		limited.GET("/drugs/:id", s.handleGetDrug)

		limited.GET("/rules", s.handleListRules)
		limited.GET("/rules/:id", s.handleGetRule)

		limited.GET("/history", s.handleListHistory)
		limited.GET("/history/:id", s.handleGetHistory)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{"addr": addr, "tls": cfg.TLSEnabled}).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}
