package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatcherConfig controls which paths trigger a reload.
type WatcherConfig struct {
	// Paths are files or directories to watch. Directories are watched
	// recursively.
	Paths []string

	// Debounce is the quiet period after the last change before reloading.
	Debounce time.Duration

	// Extensions limits events to files with these extensions.
	Extensions []string

	SkipHidden bool
}

// DefaultWatcherConfig watches rule and curation files.
func DefaultWatcherConfig(paths ...string) WatcherConfig {
	return WatcherConfig{
		Paths:      paths,
		Debounce:   250 * time.Millisecond,
		Extensions: []string{".yaml", ".yml", ".toml"},
		SkipHidden: true,
	}
}

// Watcher triggers a reload when watched files change. Editors that write
// through temp files produce bursts of events; the debouncer collapses them.
type Watcher struct {
	watcher  *fsnotify.Watcher
	config   WatcherConfig
	debounce *Debouncer
	log      *logrus.Logger

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher. Nothing is watched until Watch runs.
func NewWatcher(config WatcherConfig, logger *logrus.Logger) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatcherConfig().Debounce
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultWatcherConfig().Extensions
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher:  fw,
		config:   config,
		debounce: NewDebouncer(config.Debounce),
		log:      logger,
	}, nil
}

// Watch blocks until ctx is cancelled, calling onChange after each debounced
// burst of relevant events. The watcher is closed when Watch returns.
func (w *Watcher) Watch(ctx context.Context, onChange func()) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.debounce.Stop()
		_ = w.watcher.Close()
	}()

	for _, p := range w.config.Paths {
		if err := w.addPath(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	w.log.WithFields(logrus.Fields{
		"paths":       w.config.Paths,
		"debounce_ms": w.config.Debounce.Milliseconds(),
	}).Info("File watcher started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("File watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcess(event) {
				continue
			}
			w.log.WithFields(logrus.Fields{
				"path": event.Name,
				"op":   event.Op.String(),
			}).Debug("File event detected")

			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addPath(event.Name)
				}
			}
			w.debounce.Trigger(onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.WithError(err).Error("File watcher error")
		}
	}
}

// addPath watches a directory tree, or the parent directory of a file so
// that atomic renames over the file are still seen.
func (w *Watcher) addPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.watcher.Add(filepath.Dir(path))
	}
	return filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if w.config.SkipHidden && p != path && strings.HasPrefix(fi.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if w.config.SkipHidden && strings.HasPrefix(base, ".") {
		return false
	}
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return true
		}
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, want := range w.config.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// Debouncer runs the most recent callback once no trigger has arrived for
// the interval.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		d.callback = nil
		stopped := d.stopped
		d.mu.Unlock()
		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}

// Run reloads m after every debounced change seen by w. Reload failures are
// logged by the manager. It blocks until ctx is cancelled.
func Run(ctx context.Context, w *Watcher, m *Manager) error {
	return w.Watch(ctx, func() {
		_, _ = m.Reload(ctx)
	})
}
