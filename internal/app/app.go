// Package app wires the knowledge base, rule snapshots, engine, cache,
// metrics and history from configuration. Every binary starts here.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/cache"
	"github.com/pharmds-ddi-server/internal/config"
	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/history"
	"github.com/pharmds-ddi-server/internal/metrics"
	"github.com/pharmds-ddi-server/internal/repository"
	"github.com/pharmds-ddi-server/internal/service"
	"github.com/pharmds-ddi-server/internal/snapshot"
)

// App holds the long-lived services shared by the HTTP API, the MCP server
// and the CLI.
type App struct {
	Config    *domain.Config
	Paths     *config.Paths
	Snapshots *snapshot.Store
	Manager   *snapshot.Manager
	Engine    *service.Engine
	Cache     *cache.ResultCache
	Metrics   *metrics.Collector
	// History is nil unless history is enabled.
	History history.Store

	log     *logrus.Logger
	closers []func()
}

type options struct {
	forceHistory bool
	paths        *config.Paths
}

// Option customizes New.
type Option func(*options)

// WithHistory opens the history store even when it is disabled in config.
func WithHistory() Option {
	return func(o *options) { o.forceHistory = true }
}

// WithPaths overrides the data directory layout.
func WithPaths(p *config.Paths) Option {
	return func(o *options) { o.paths = p }
}

// New builds every service and publishes the first snapshot. A knowledge
// base or rule set that fails validation is returned as an error.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.paths == nil {
		o.paths = config.DefaultPaths()
	}

	a := &App{Config: cfg, Paths: o.paths, log: logger}

	kbCfg := cfg.KB
	if kbCfg.Source == domain.KBSourceSQLite {
		kbCfg.SQLitePath = o.paths.ResolveKnowledgeBasePath(kbCfg.SQLitePath)
	}
	repo, closeRepo, err := repository.Open(ctx, kbCfg, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}
	a.closers = append(a.closers, closeRepo)

	a.Metrics = metrics.NewCollector(cfg.Metrics, nil)
	a.Snapshots = snapshot.NewStore(logger)
	a.Manager = snapshot.NewManager(snapshot.NewBuilder(repo, cfg.Rules.Dir, logger), a.Snapshots, a.Metrics, logger)

	engineOpts := []service.EngineOption{service.WithRecorder(a.Metrics)}
	if cfg.Cache.Enabled {
		a.Cache = a.newCache(ctx)
		engineOpts = append(engineOpts, service.WithCache(a.Cache))
		a.Manager.OnSwap(func(current, previous *snapshot.Snapshot) {
			if previous != nil {
				a.Cache.Purge()
			}
		})
	}
	a.Engine = service.NewEngine(a.Snapshots, cfg.Engine, logger, engineOpts...)

	if _, err := a.Manager.Reload(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading knowledge base snapshot: %w", err)
	}

	if cfg.History.Enabled || o.forceHistory {
		store, err := a.openHistory(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.History = store
		a.closers = append(a.closers, func() { _ = store.Close() })
	}

	return a, nil
}

// newCache builds the result cache. An unreachable Redis degrades to the
// in-memory tier.
func (a *App) newCache(ctx context.Context) *cache.ResultCache {
	cfg := a.Config.Cache
	opts := []cache.Option{cache.WithObserver(a.Metrics)}
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			a.log.WithError(err).Warn("Redis unavailable, using in-memory result cache only")
		} else {
			opts = append(opts, cache.WithRedis(client))
			a.closers = append(a.closers, func() { _ = client.Close() })
		}
	}
	return cache.New(cfg, a.log, opts...)
}

func (a *App) openHistory(ctx context.Context) (history.Store, error) {
	cfg := a.Config.History
	path := ""
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		if cfg.Path == "" {
			if err := a.Paths.EnsureDataDir(); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		path = a.Paths.ResolveHistoryPath(cfg.Path)
	}
	store, err := history.Open(ctx, cfg, a.Config.Database, path, a.log)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	return store, nil
}

// StartRetention schedules the history purge job. It is a no-op without a
// history store.
func (a *App) StartRetention(ctx context.Context) error {
	if a.History == nil {
		return nil
	}
	return history.NewRetention(a.History, a.Config.History.Retention, a.log).
		Start(ctx, a.Config.History.PurgeSchedule)
}

// WatchPaths returns the files whose changes should trigger a reload.
func (a *App) WatchPaths() []string {
	var paths []string
	if a.Config.Rules.Dir != "" {
		paths = append(paths, a.Config.Rules.Dir)
	}
	if a.Config.KB.CurationFile != "" && (a.Config.KB.Source == "" || a.Config.KB.Source == domain.KBSourceEmbedded) {
		paths = append(paths, a.Config.KB.CurationFile)
	}
	return paths
}

// Watch reloads the snapshot when rule or curation files change, until ctx
// is done. It returns immediately when watching is disabled or there is
// nothing on disk to watch.
func (a *App) Watch(ctx context.Context) error {
	paths := a.WatchPaths()
	if !a.Config.Rules.Watch || len(paths) == 0 {
		return nil
	}

	wcfg := snapshot.DefaultWatcherConfig(paths...)
	if a.Config.Rules.WatchDebounce > 0 {
		wcfg.Debounce = a.Config.Rules.WatchDebounce
	}
	w, err := snapshot.NewWatcher(wcfg, a.log)
	if err != nil {
		return err
	}
	a.log.WithField("paths", paths).Info("Watching knowledge base files for changes")
	return snapshot.Run(ctx, w, a.Manager)
}

// Close releases database handles and connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
