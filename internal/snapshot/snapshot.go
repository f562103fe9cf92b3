// Package snapshot holds the immutable knowledge base and rule set that every
// evaluation reads. A new snapshot is built off to the side and published with
// a single atomic pointer swap, so queries never observe a half-loaded state.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/kb"
	"github.com/pharmds-ddi-server/internal/rules"
)

// Snapshot is one consistent (knowledge base, rule set) pair.
type Snapshot struct {
	KB          *kb.KnowledgeBase
	Rules       *rules.Set
	Version     uint64
	Fingerprint string
	LoadedAt    time.Time
	KBSource    string
	RulesSource string
}

// Fingerprint hashes the knowledge base contents and the rule set digest.
// Equal fingerprints mean evaluations produce equal results.
func Fingerprint(k *kb.KnowledgeBase, set *rules.Set) string {
	h := sha256.New()
	// Dataset holds plain values only; encoding cannot fail.
	_ = json.NewEncoder(h).Encode(k.Dataset())
	h.Write([]byte(set.Digest()))
	return hex.EncodeToString(h.Sum(nil))
}

// EventType classifies store events.
type EventType string

const (
	EventLoaded       EventType = "loaded"
	EventUnchanged    EventType = "unchanged"
	EventReloadFailed EventType = "reload_failed"
)

// Event is published to subscribers whenever a reload is attempted.
type Event struct {
	Type        EventType `json:"type"`
	Version     uint64    `json:"version"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Rules       int       `json:"rules,omitempty"`
	Drugs       int       `json:"drugs,omitempty"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// Store publishes snapshots. Current is lock-free.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	log     *logrus.Logger

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewStore creates an empty store.
func NewStore(logger *logrus.Logger) *Store {
	return &Store{
		log:  logger,
		subs: make(map[int]chan Event),
	}
}

// Current returns the published snapshot, or nil before the first Swap.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Swap assigns the next version to snap, publishes it and returns the
// snapshot it replaced.
func (s *Store) Swap(snap *Snapshot) *Snapshot {
	snap.Version = s.version.Add(1)
	prev := s.current.Swap(snap)

	s.log.WithFields(logrus.Fields{
		"version":     snap.Version,
		"fingerprint": short(snap.Fingerprint),
		"rules":       snap.Rules.Len(),
		"drugs":       snap.KB.Stats().Drugs,
	}).Info("Snapshot published")

	s.publish(Event{
		Type:        EventLoaded,
		Version:     snap.Version,
		Fingerprint: snap.Fingerprint,
		Rules:       snap.Rules.Len(),
		Drugs:       snap.KB.Stats().Drugs,
		Time:        snap.LoadedAt,
	})
	return prev
}

// Subscribe returns a channel of store events and a func that cancels the
// subscription. Slow subscribers miss events rather than block publishers.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
