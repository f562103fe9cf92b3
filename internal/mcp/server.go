// Package mcp exposes the interaction engine to MCP clients as tools and
// resources.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/history"
	"github.com/pharmds-ddi-server/internal/service"
)

// Transport types.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ErrMissingEngine is returned when no engine is provided.
var ErrMissingEngine = errors.New("mcp: engine is required")

// Dependencies are the services behind the tools. History is optional.
type Dependencies struct {
	Engine  *service.Engine
	History history.Store
}

// Server represents the MCP server
type Server struct {
	cfg    domain.MCPConfig
	deps   Dependencies
	server *mcp.Server
	logger *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg domain.MCPConfig, deps Dependencies, logger *logrus.Logger) (*Server, error) {
	if deps.Engine == nil {
		return nil, ErrMissingEngine
	}

	name := cfg.ServerName
	if name == "" {
		name = "pharmds-ddi-server"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "v0.1.0"
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		server: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		logger: logger,
	}

	s.registerTools()
	s.registerResources()
	logger.WithFields(logrus.Fields{"name": name, "version": version}).Debug("Registered MCP capabilities")

	return s, nil
}

// Run serves on the configured transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.TransportType {
	case "", TransportStdio:
		s.logger.Info("Starting MCP server on stdio")
		return s.server.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return s.RunHTTP(ctx, fmt.Sprintf("%s:%d", s.cfg.HTTPHost, s.cfg.HTTPPort))
	default:
		return domain.NewValidationError("mcp.transport_type", "transport must be stdio or http", s.cfg.TransportType)
	}
}

// RunHTTP serves the streamable HTTP transport on addr.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("addr", addr).Info("Starting MCP server on streamable HTTP")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Connect serves a single session over t, for in-process clients.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// withTimeout applies the configured per-call timeout.
func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}
