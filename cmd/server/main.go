package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pharmds-ddi-server/internal/api"
	"github.com/pharmds-ddi-server/internal/app"
	"github.com/pharmds-ddi-server/internal/config"
)

func main() {
	configFile := flag.String("config", "", "path to a config file")
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
	logger := config.NewLogger(cfg.Logging)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer services.Close()

	if err := services.StartRetention(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start history retention")
	}
	go func() {
		if err := services.Watch(ctx); err != nil {
			logger.WithError(err).Error("Knowledge base watcher stopped")
		}
	}()

	server := api.NewServer(cfg, api.Dependencies{
		Engine:    services.Engine,
		Snapshots: services.Snapshots,
		History:   services.History,
		Metrics:   services.Metrics,
	}, logger)

	logger.WithField("addr", cfg.Server.Host).Infof("Starting PharmDS interaction server on port %d", cfg.Server.Port)

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}

	logger.Info("Server stopped")
}
