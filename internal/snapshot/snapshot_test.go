package snapshot

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/data"
	"github.com/pharmds-ddi-server/internal/repository"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) ObserveReload(result string, _ uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func (o *recordingObserver) Results() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.results...)
}

// copyRules writes the embedded rule files into a temp directory.
func copyRules(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	entries, err := fs.ReadDir(data.FS, data.RulesDir)
	require.NoError(t, err)
	for _, e := range entries {
		raw, err := fs.ReadFile(data.FS, path.Join(data.RulesDir, e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, e.Name()), raw, 0o644))
	}
	return dir
}

func newBuilder(rulesDir string) *Builder {
	return NewBuilder(repository.NewCurationRepository(""), rulesDir, quietLogger())
}

func TestBuilder_Embedded(t *testing.T) {
	// Act
	snap, err := newBuilder("").Build(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 15, snap.Rules.Len())
	assert.Len(t, snap.Fingerprint, 64)
	assert.Equal(t, "embedded", snap.KBSource)
	assert.Equal(t, "embedded", snap.RulesSource)
	assert.Zero(t, snap.Version, "unpublished snapshots have no version")
}

func TestBuilder_FingerprintTracksContent(t *testing.T) {
	dir := copyRules(t)
	b := newBuilder(dir)

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	again, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, again.Fingerprint)

	file := filepath.Join(dir, "pk_bcrp_inhib_substrate.yaml")
	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, []byte(strings.Replace(string(raw), "severity: caution", "severity: major", 1)), 0o644))

	// Act
	changed, err := b.Build(context.Background())

	// Assert
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, changed.Fingerprint)
}

func TestBuilder_RejectsRulesThatDoNotMatchKB(t *testing.T) {
	dir := copyRules(t)
	file := filepath.Join(dir, "pk_ugt1a1_inhib.yaml")
	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, []byte(strings.ReplaceAll(string(raw), "UGT1A1\n", "UGT9Z9\n")), 0o644))

	_, err = newBuilder(dir).Build(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown enzyme")
}

func TestStore_SwapAndSubscribe(t *testing.T) {
	store := NewStore(quietLogger())
	assert.Nil(t, store.Current())

	events, unsubscribe := store.Subscribe(4)
	snap, err := newBuilder("").Build(context.Background())
	require.NoError(t, err)

	// Act
	prev := store.Swap(snap)

	// Assert
	assert.Nil(t, prev)
	assert.Same(t, snap, store.Current())
	assert.Equal(t, uint64(1), snap.Version)

	ev := <-events
	assert.Equal(t, EventLoaded, ev.Type)
	assert.Equal(t, uint64(1), ev.Version)
	assert.Equal(t, 15, ev.Rules)

	next, err := newBuilder("").Build(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, store.Swap(next))
	assert.Equal(t, uint64(2), next.Version)

	unsubscribe()
	unsubscribe()
	<-events
	_, open := <-events
	assert.False(t, open, "unsubscribe closes the channel")
}

func TestManager_Reload(t *testing.T) {
	dir := copyRules(t)
	observer := &recordingObserver{}
	store := NewStore(quietLogger())
	m := NewManager(newBuilder(dir), store, observer, quietLogger())

	var swaps atomic.Int32
	m.OnSwap(func(current, previous *Snapshot) { swaps.Add(1) })

	first, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)

	t.Run("unchanged content keeps the version", func(t *testing.T) {
		snap, err := m.Reload(context.Background())

		require.NoError(t, err)
		assert.Same(t, first, snap)
		assert.Equal(t, int32(1), swaps.Load())
	})

	t.Run("failed rebuild keeps the current snapshot", func(t *testing.T) {
		events, unsubscribe := store.Subscribe(1)
		defer unsubscribe()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [unterminated"), 0o644))
		defer os.Remove(filepath.Join(dir, "broken.yaml"))

		snap, err := m.Reload(context.Background())

		require.Error(t, err)
		assert.Same(t, first, snap)
		assert.Same(t, first, store.Current())
		ev := <-events
		assert.Equal(t, EventReloadFailed, ev.Type)
		assert.Contains(t, ev.Error, "broken.yaml")
	})

	assert.Equal(t, []string{ReloadSuccess, ReloadUnchanged, ReloadFailure}, observer.Results())
}

func TestWatcher_ReloadsOnRuleChange(t *testing.T) {
	dir := copyRules(t)
	store := NewStore(quietLogger())
	m := NewManager(newBuilder(dir), store, nil, quietLogger())
	_, err := m.Reload(context.Background())
	require.NoError(t, err)

	cfg := DefaultWatcherConfig(dir)
	cfg.Debounce = 50 * time.Millisecond
	w, err := NewWatcher(cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, w, m) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	file := filepath.Join(dir, "pk_bcrp_inhib_substrate.yaml")
	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, []byte(strings.Replace(string(raw), "severity: caution", "severity: major", 1)), 0o644))

	// Assert
	require.Eventually(t, func() bool {
		return store.Current().Version == 2
	}, 5*time.Second, 20*time.Millisecond)

	rule, ok := store.Current().Rules.ByID("PK_BCRP_INHIB_SUBSTRATE")
	require.True(t, ok)
	assert.Equal(t, "major", string(rule.Severity))
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	w, err := NewWatcher(DefaultWatcherConfig(), quietLogger())
	require.NoError(t, err)
	defer w.watcher.Close()

	tests := []struct {
		name string
		file string
		want bool
	}{
		{"yaml rule", "/rules/a.yaml", true},
		{"toml rule", "/rules/a.TOML", true},
		{"editor swap file", "/rules/.a.yaml.swp", false},
		{"hidden yaml", "/rules/.a.yaml", false},
		{"readme", "/rules/README.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldProcess(fsnotifyWrite(tt.file)))
		})
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32

	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "stopped debouncer ignores triggers")
}

func fsnotifyWrite(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}
