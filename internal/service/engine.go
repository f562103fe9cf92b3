// Package service implements the interaction reasoning engine: name
// resolution, rule matching, composite derivation, aggregation and the Engine
// facade used by the HTTP API, the MCP server and the CLI.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/snapshot"
)

// ErrNoSnapshot is returned before the first snapshot has been published.
var ErrNoSnapshot = errors.New("no knowledge base snapshot loaded")

// Evaluation outcomes reported to a Recorder.
const (
	OutcomeInteractions = "interactions"
	OutcomeNone         = "none"
	OutcomeNotFound     = "not_found"
	OutcomeAmbiguous    = "ambiguous"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
)

// ResultCache stores evaluation results by key.
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.EvaluationResult, bool)
	Set(ctx context.Context, key string, res *domain.EvaluationResult)
}

// Recorder observes evaluations, typically for metrics.
type Recorder interface {
	ObserveEvaluation(outcome string, duration time.Duration, res *domain.EvaluationResult)
}

// CheckRequest asks for the interactions between named drugs.
type CheckRequest struct {
	Names []string
	// Domains is a comma-separated domain filter such as "cyp,pd".
	// Empty selects every domain.
	Domains string
}

// CheckResult is the answer to a CheckRequest.
type CheckResult struct {
	Names           []string
	Domains         domain.DomainFilter
	Result          *domain.EvaluationResult
	SnapshotVersion uint64
	Fingerprint     string
	Cached          bool
	Duration        time.Duration
}

// Engine resolves names and evaluates them against the current snapshot.
// It is safe for concurrent use; each call reads one snapshot throughout.
type Engine struct {
	store     *snapshot.Store
	evaluator *Evaluator
	parser    *InputParser
	cache     ResultCache
	recorder  Recorder
	log       *logrus.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCache enables result caching.
func WithCache(c ResultCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithRecorder sets the evaluation observer.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates an engine reading snapshots from store.
func NewEngine(store *snapshot.Store, cfg domain.EngineConfig, logger *logrus.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		evaluator: NewEvaluator(cfg),
		parser:    NewInputParser(cfg.MaxDrugs),
		log:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot returns the current snapshot.
func (e *Engine) Snapshot() (*snapshot.Snapshot, error) {
	snap := e.store.Current()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Resolve maps one name to a drug id using the current snapshot.
func (e *Engine) Resolve(name string) (*domain.Drug, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	id, err := NewResolver(snap.KB).Resolve(name)
	if err != nil {
		return nil, err
	}
	d, _ := snap.KB.Drug(id)
	return d, nil
}

// Evaluate runs a pure evaluation of resolved ids on snap.
func (e *Engine) Evaluate(snap *snapshot.Snapshot, ids []string, filter domain.DomainFilter) (*domain.EvaluationResult, error) {
	return e.evaluator.Evaluate(snap.KB, snap.Rules, ids, filter)
}

// Check resolves req.Names and evaluates them. Resolution failures are
// returned as *domain.NotFoundError or *domain.AmbiguousNameError (possibly
// joined); an empty result is not an error.
func (e *Engine) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	start := time.Now()

	res, err := e.check(ctx, req, start)
	outcome := outcomeOf(res, err)
	if e.recorder != nil {
		var evaluated *domain.EvaluationResult
		if res != nil {
			evaluated = res.Result
		}
		e.recorder.ObserveEvaluation(outcome, time.Since(start), evaluated)
	}

	fields := logrus.Fields{
		"drugs":       req.Names,
		"domains":     req.Domains,
		"outcome":     outcome,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.log.WithFields(fields).WithError(err).Debug("Interaction check failed")
		return nil, err
	}
	fields["overall_severity"] = res.Result.OverallSeverity
	fields["findings"] = res.Result.FindingCount()
	fields["cached"] = res.Cached
	e.log.WithFields(fields).Info("Interaction check completed")
	return res, nil
}

func (e *Engine) check(ctx context.Context, req CheckRequest, start time.Time) (*CheckResult, error) {
	names := e.parser.ParseArgs(req.Names...)
	if err := e.parser.Validate(names); err != nil {
		return nil, err
	}
	filter, err := domain.ParseDomainFilter(req.Domains)
	if err != nil {
		return nil, domain.NewValidationError("domains", err.Error(), req.Domains)
	}

	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}

	ids, err := NewResolver(snap.KB).ResolveAll(names)
	if err != nil {
		return nil, err
	}

	out := &CheckResult{
		Names:           names,
		Domains:         filter,
		SnapshotVersion: snap.Version,
		Fingerprint:     snap.Fingerprint,
	}

	key := CacheKey(snap.Fingerprint, ids, filter)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			copied := *cached
			copied.Domains = filter
			out.Result = &copied
			out.Cached = true
			out.Duration = time.Since(start)
			return out, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := e.Evaluate(snap, ids, filter)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", strings.Join(ids, ", "), err)
	}
	if e.cache != nil {
		e.cache.Set(ctx, key, result)
	}

	out.Result = result
	out.Duration = time.Since(start)
	return out, nil
}

func outcomeOf(res *CheckResult, err error) string {
	switch {
	case err == nil && res.Result.IsEmpty():
		return OutcomeNone
	case err == nil:
		return OutcomeInteractions
	case errors.Is(err, domain.ErrAmbiguousName):
		return OutcomeAmbiguous
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrValidation):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

// CacheKey identifies an evaluation: the snapshot fingerprint, the sorted
// distinct drug ids and the domain filter.
func CacheKey(fingerprint string, ids []string, filter domain.DomainFilter) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", fingerprint, strings.Join(sorted, ","), filter)
	return hex.EncodeToString(h.Sum(nil))
}
