package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reload outcomes reported to a ReloadObserver.
const (
	ReloadSuccess   = "success"
	ReloadFailure   = "failure"
	ReloadUnchanged = "unchanged"
)

// ReloadObserver is told about every reload attempt.
type ReloadObserver interface {
	ObserveReload(result string, version uint64)
}

// SwapHook runs after a new snapshot is published, with the one it replaced.
type SwapHook func(current, previous *Snapshot)

// Manager rebuilds snapshots and publishes them to a Store. A failed rebuild
// leaves the current snapshot in place.
type Manager struct {
	builder  *Builder
	store    *Store
	observer ReloadObserver
	hooks    []SwapHook
	log      *logrus.Logger

	// reloads are serialized so two watchers cannot race a swap.
	mu sync.Mutex
}

// NewManager creates a manager. observer may be nil.
func NewManager(builder *Builder, store *Store, observer ReloadObserver, logger *logrus.Logger) *Manager {
	return &Manager{builder: builder, store: store, observer: observer, log: logger}
}

// OnSwap registers a hook that runs after every successful swap.
func (m *Manager) OnSwap(hook SwapHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Store returns the store the manager publishes to.
func (m *Manager) Store() *Store {
	return m.store
}

// Reload builds a snapshot and publishes it unless its fingerprint equals the
// current one. It returns the snapshot in effect afterwards.
func (m *Manager) Reload(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.store.Current()
	next, err := m.builder.Build(ctx)
	if err != nil {
		version := uint64(0)
		if current != nil {
			version = current.Version
		}
		m.log.WithError(err).WithField("version", version).Error("Snapshot reload failed, keeping current snapshot")
		m.store.publish(Event{
			Type:    EventReloadFailed,
			Version: version,
			Error:   err.Error(),
			Time:    time.Now().UTC(),
		})
		m.observe(ReloadFailure, version)
		return current, err
	}

	if current != nil && current.Fingerprint == next.Fingerprint {
		m.log.WithField("version", current.Version).Info("Snapshot unchanged")
		m.store.publish(Event{
			Type:        EventUnchanged,
			Version:     current.Version,
			Fingerprint: current.Fingerprint,
			Time:        time.Now().UTC(),
		})
		m.observe(ReloadUnchanged, current.Version)
		return current, nil
	}

	prev := m.store.Swap(next)
	for _, hook := range m.hooks {
		hook(next, prev)
	}
	m.observe(ReloadSuccess, next.Version)
	return next, nil
}

func (m *Manager) observe(result string, version uint64) {
	if m.observer != nil {
		m.observer.ObserveReload(result, version)
	}
}
