package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/kb"
	"github.com/pharmds-ddi-server/internal/repository"
	"github.com/pharmds-ddi-server/internal/rules"
)

// Builder assembles snapshots from a knowledge base repository and a rule
// source. An empty rules directory selects the embedded rule set.
type Builder struct {
	repo     repository.KnowledgeBaseRepository
	rulesDir string
	log      *logrus.Logger
}

// NewBuilder creates a snapshot builder.
func NewBuilder(repo repository.KnowledgeBaseRepository, rulesDir string, logger *logrus.Logger) *Builder {
	return &Builder{repo: repo, rulesDir: rulesDir, log: logger}
}

// RulesDir returns the watched rule directory, empty for the embedded set.
func (b *Builder) RulesDir() string {
	return b.rulesDir
}

// Build loads and cross-validates a new snapshot. The returned snapshot is
// not yet published and has no version.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	ds, err := b.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base from %s: %w", b.repo.Source(), err)
	}
	base, err := kb.New(ds)
	if err != nil {
		return nil, err
	}

	set, err := rules.Load(b.rulesDir)
	if err != nil {
		return nil, err
	}
	if err := set.ValidateAgainst(base); err != nil {
		return nil, err
	}

	rulesSource := "embedded"
	if b.rulesDir != "" {
		rulesSource = b.rulesDir
	}
	snap := &Snapshot{
		KB:          base,
		Rules:       set,
		Fingerprint: Fingerprint(base, set),
		LoadedAt:    time.Now().UTC(),
		KBSource:    b.repo.Source(),
		RulesSource: rulesSource,
	}

	b.log.WithFields(logrus.Fields{
		"kb_source":    snap.KBSource,
		"rules_source": snap.RulesSource,
		"rules":        set.Len(),
		"drugs":        base.Stats().Drugs,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Debug("Snapshot built")
	return snap, nil
}
