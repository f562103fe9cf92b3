// Package history stores past interaction checks so they can be listed,
// replayed and exported. Records are immutable once saved.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/pharmds-ddi-server/internal/domain"
)

// ExportVersion is the version of the JSON export format.
const ExportVersion = "1.0"

// ErrRecordNotFound is returned by Get and Delete for unknown ids.
var ErrRecordNotFound = errors.New("history record not found")

// Record is one stored interaction check.
type Record struct {
	ID              string           `json:"id"`
	CreatedAt       time.Time        `json:"created_at"`
	InputNames      []string         `json:"input_names"`
	DrugIDs         []string         `json:"drug_ids"`
	Domains         string           `json:"domains"`
	OverallSeverity domain.Severity  `json:"overall_severity"`
	OverallClass    domain.RuleClass `json:"overall_rule_class"`
	FindingCount    int              `json:"finding_count"`
	SnapshotVersion uint64           `json:"snapshot_version"`
	// Payload is the full evaluation result as JSON.
	Payload json.RawMessage `json:"payload"`
}

// NewRecord captures res for the names the user typed.
func NewRecord(names []string, res *domain.EvaluationResult, snapshotVersion uint64) (*Record, error) {
	if res == nil {
		return nil, domain.NewValidationError("result", "evaluation result is required", nil)
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding evaluation result: %w", err)
	}
	return &Record{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		InputNames:      append([]string(nil), names...),
		DrugIDs:         append([]string(nil), res.DrugIDs...),
		Domains:         res.Domains.String(),
		OverallSeverity: res.OverallSeverity,
		OverallClass:    res.OverallClass,
		FindingCount:    res.FindingCount(),
		SnapshotVersion: snapshotVersion,
		Payload:         payload,
	}, nil
}

// Result decodes the stored evaluation result.
func (r *Record) Result() (*domain.EvaluationResult, error) {
	var res domain.EvaluationResult
	if err := json.Unmarshal(r.Payload, &res); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", r.ID, err)
	}
	return &res, nil
}

// Store defines the interface for history storage operations.
type Store interface {
	// Save stores a record. A record with an existing id is rejected.
	Save(ctx context.Context, rec *Record) error

	// Get retrieves a record by id.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records newest first.
	List(ctx context.Context, limit, offset int) ([]*Record, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// PurgeBefore deletes records created before cutoff and returns how
	// many were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ExportJSON writes every record to w.
	ExportJSON(ctx context.Context, w io.Writer) error

	// ImportJSON reads an export. Records whose id already exists are
	// skipped.
	ImportJSON(ctx context.Context, r io.Reader) (imported int, skipped int, err error)

	// Close releases the store's resources.
	Close() error
}

// Export is the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

// maxExportLimit is the maximum number of records exported at once.
const maxExportLimit = 1000000

// exportJSON and importJSON implement the export format over any Store.
func exportJSON(ctx context.Context, s Store, w io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}
	if all == nil {
		all = []*Record{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&Export{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Records:    all,
	})
}

func importJSON(ctx context.Context, s Store, r io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("decoding export: %w", err)
	}
	if export.Version != ExportVersion {
		return 0, 0, domain.NewValidationError("version", "unsupported export version", export.Version)
	}

	for _, rec := range export.Records {
		if rec == nil || rec.ID == "" {
			skipped++
			continue
		}
		_, err := s.Get(ctx, rec.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return imported, skipped, fmt.Errorf("checking record %s: %w", rec.ID, err)
		}
		if err := s.Save(ctx, rec); err != nil {
			return imported, skipped, fmt.Errorf("saving record %s: %w", rec.ID, err)
		}
		imported++
	}
	return imported, skipped, nil
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var (
		names, ids string
		severity   string
		class      string
		version    int64
		payload    []byte
	)
	err := s.Scan(&rec.ID, &rec.CreatedAt, &names, &ids, &rec.Domains,
		&severity, &class, &rec.FindingCount, &version, &payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(names), &rec.InputNames); err != nil {
		return nil, fmt.Errorf("decoding input names of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(ids), &rec.DrugIDs); err != nil {
		return nil, fmt.Errorf("decoding drug ids of %s: %w", rec.ID, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.OverallSeverity = domain.Severity(severity)
	rec.OverallClass = domain.RuleClass(class)
	rec.SnapshotVersion = uint64(version)
	rec.Payload = payload
	return rec, nil
}

// columns returns the encoded insert values of rec in column order.
func columns(rec *Record) ([]any, error) {
	if rec.ID == "" {
		return nil, domain.NewValidationError("id", "record id is required", nil)
	}
	if len(rec.Payload) == 0 || !json.Valid(rec.Payload) {
		return nil, domain.NewValidationError("payload", "payload must be valid JSON", rec.ID)
	}
	names, err := json.Marshal(nonNil(rec.InputNames))
	if err != nil {
		return nil, err
	}
	ids, err := json.Marshal(nonNil(rec.DrugIDs))
	if err != nil {
		return nil, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return []any{
		rec.ID, rec.CreatedAt.UTC(), string(names), string(ids), rec.Domains,
		string(rec.OverallSeverity), string(rec.OverallClass), rec.FindingCount,
		int64(rec.SnapshotVersion), string(rec.Payload),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const selectColumns = `id, created_at, input_names, drug_ids, domains,
	overall_severity, overall_class, finding_count, snapshot_version, payload`
