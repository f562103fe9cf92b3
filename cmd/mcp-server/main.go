package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pharmds-ddi-server/internal/app"
	"github.com/pharmds-ddi-server/internal/config"
	"github.com/pharmds-ddi-server/internal/mcp"
)

func main() {
	configFile := flag.String("config", "", "path to a config file")
	transport := flag.String("transport", "", "override the transport: stdio or http")
	flag.Parse()

	// Load configuration
	var opts []config.Option
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	configManager, err := config.NewManager(opts...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	if *transport != "" {
		cfg.MCP.TransportType = *transport
	}
	// stdout carries the protocol on stdio.
	if cfg.MCP.TransportType == "" || cfg.MCP.TransportType == mcp.TransportStdio {
		cfg.Logging.Output = "stderr"
	}
	logger := config.NewLogger(cfg.Logging)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer services.Close()

	go func() {
		if err := services.Watch(ctx); err != nil {
			logger.WithError(err).Error("Knowledge base watcher stopped")
		}
	}()

	// Create MCP server
	mcpServer, err := mcp.NewServer(cfg.MCP, mcp.Dependencies{
		Engine:  services.Engine,
		History: services.History,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}

	// Start MCP server
	if err := mcpServer.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("PharmDS MCP server stopped")
}
