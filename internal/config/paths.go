package config

import (
	"os"
	"path/filepath"
)

// Paths locates the on-disk files used when running without an external
// database: the seeded knowledge base, evaluation history and exports.
type Paths struct {
	DataDir string
}

// DefaultPaths returns the data directory from PHARMDS_DATA_DIR, falling back
// to ~/.pharmds.
func DefaultPaths() *Paths {
	if v := os.Getenv("PHARMDS_DATA_DIR"); v != "" {
		return &Paths{DataDir: v}
	}
	homeDir, _ := os.UserHomeDir()
	return &Paths{DataDir: filepath.Join(homeDir, ".pharmds")}
}

// KnowledgeBasePath returns the path to the seeded SQLite knowledge base.
func (p *Paths) KnowledgeBasePath() string {
	return filepath.Join(p.DataDir, "kb.db")
}

// HistoryDBPath returns the path to the evaluation history database.
func (p *Paths) HistoryDBPath() string {
	return filepath.Join(p.DataDir, "history.db")
}

// ExportDir returns the directory for JSON exports.
func (p *Paths) ExportDir() string {
	return filepath.Join(p.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (p *Paths) EnsureDataDir() error {
	if err := os.MkdirAll(p.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(p.ExportDir(), 0755)
}

// ResolveKnowledgeBasePath returns configured when set, otherwise the default
// location under the data directory.
func (p *Paths) ResolveKnowledgeBasePath(configured string) string {
	if configured != "" {
		return configured
	}
	return p.KnowledgeBasePath()
}

// ResolveHistoryPath returns configured when set, otherwise the default
// location under the data directory.
func (p *Paths) ResolveHistoryPath(configured string) string {
	if configured != "" {
		return configured
	}
	return p.HistoryDBPath()
}
