package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/snapshot"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string]*domain.EvaluationResult
	hits int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]*domain.EvaluationResult)}
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.EvaluationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.data[key]
	if ok {
		c.hits++
	}
	return res, ok
}

func (c *mapCache) Set(_ context.Context, key string, res *domain.EvaluationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = res
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) ObserveEvaluation(outcome string, _ time.Duration, _ *domain.EvaluationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	store := snapshot.NewStore(quietLogger())
	store.Swap(seedSnapshot(t))
	return NewEngine(store, domain.DefaultEngineConfig(), quietLogger(), opts...)
}

func TestEngine_Check(t *testing.T) {
	rec := &outcomeRecorder{}
	engine := newTestEngine(t, WithRecorder(rec))

	// Act
	out, err := engine.Check(context.Background(), CheckRequest{Names: []string{"Seroquel, Biaxin"}})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"Seroquel", "Biaxin"}, out.Names)
	assert.Equal(t, []string{"clarithromycin", "quetiapine"}, out.Result.DrugIDs)
	assert.Equal(t, domain.SeverityMajor, out.Result.OverallSeverity)
	assert.Equal(t, uint64(1), out.SnapshotVersion)
	assert.NotEmpty(t, out.Fingerprint)
	assert.False(t, out.Cached)
	assert.Equal(t, []string{OutcomeInteractions}, rec.outcomes)
}

func TestEngine_CheckOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		req     CheckRequest
		want    string
		wantErr error
	}{
		{"no interaction", CheckRequest{Names: []string{"midazolam", "fluconazole"}}, OutcomeNone, nil},
		{"unknown drug", CheckRequest{Names: []string{"warfarin", "clarithromicin"}}, OutcomeNotFound, domain.ErrNotFound},
		{"single drug", CheckRequest{Names: []string{"warfarin"}}, OutcomeInvalid, domain.ErrValidation},
		{"bad domain filter", CheckRequest{Names: []string{"warfarin", "aspirin"}, Domains: "liver"}, OutcomeInvalid, domain.ErrValidation},
		{"same drug twice", CheckRequest{Names: []string{"warfarin", "coumadin"}}, OutcomeInvalid, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &outcomeRecorder{}
			engine := newTestEngine(t, WithRecorder(rec))

			_, err := engine.Check(context.Background(), tt.req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, []string{tt.want}, rec.outcomes)
		})
	}
}

func TestEngine_CheckUsesCache(t *testing.T) {
	cache := newMapCache()
	engine := newTestEngine(t, WithCache(cache))
	ctx := context.Background()

	first, err := engine.Check(ctx, CheckRequest{Names: []string{"warfarin", "fluconazole"}})
	require.NoError(t, err)
	second, err := engine.Check(ctx, CheckRequest{Names: []string{"Diflucan", "Coumadin"}})
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.Result.All(), second.Result.All())

	filtered, err := engine.Check(ctx, CheckRequest{Names: []string{"warfarin", "fluconazole"}, Domains: "cyp"})
	require.NoError(t, err)
	assert.False(t, filtered.Cached, "the domain filter is part of the key")
}

func TestEngine_NoSnapshot(t *testing.T) {
	engine := NewEngine(snapshot.NewStore(quietLogger()), domain.DefaultEngineConfig(), quietLogger())

	_, err := engine.Check(context.Background(), CheckRequest{Names: []string{"warfarin", "aspirin"}})

	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestEngine_CancelledContext(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Check(ctx, CheckRequest{Names: []string{"warfarin", "aspirin"}})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Resolve(t *testing.T) {
	engine := newTestEngine(t)

	d, err := engine.Resolve("Lanoxin")

	require.NoError(t, err)
	assert.Equal(t, "digoxin", d.ID)
	assert.True(t, d.IsNarrowTI())
}

func TestCacheKey(t *testing.T) {
	k1 := CacheKey("fp", []string{"warfarin", "aspirin"}, domain.AllDomains())
	k2 := CacheKey("fp", []string{"aspirin", "warfarin"}, domain.AllDomains())

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, CacheKey("other", []string{"aspirin", "warfarin"}, domain.AllDomains()))
	assert.NotEqual(t, k1, CacheKey("fp", []string{"aspirin", "warfarin"}, domain.FilterPK))
}

func TestBuildPairReports(t *testing.T) {
	snap := seedSnapshot(t)

	res := evaluate(t, snap, domain.AllDomains(), "digoxin", "verapamil", "clarithromycin")

	byPair := make(map[string]domain.PairReport)
	for _, p := range res.Pairs {
		byPair[p.A.ID+"+"+p.B.ID] = p
	}
	require.Len(t, byPair, 3)

	dv := byPair["digoxin+verapamil"]
	assert.Equal(t, []string{"PK_PGP_INHIB_DIGOXIN"}, ruleIDs(dv.PK))
	assert.ElementsMatch(t, []string{"COMP_PK_UP_BRADYCARDIA", "PD_BRADYCARDIA_ADDITIVE"}, ruleIDs(dv.PD))
	assert.Equal(t, domain.PKSummaryIncrease, dv.PKSummary)
	assert.Equal(t, domain.SeverityMajor, dv.OverallSeverity)

	dc := byPair["clarithromycin+digoxin"]
	assert.Equal(t, []string{"PK_PGP_INHIB_DIGOXIN"}, ruleIDs(dc.PK))
	assert.Equal(t, []string{"COMP_PK_UP_BRADYCARDIA"}, ruleIDs(dc.PD))

	vc := byPair["clarithromycin+verapamil"]
	pk := findRule(vc.PK, "PK_CYP3A4_STRONG_INHIB")
	require.NotNil(t, pk)
	assert.Equal(t, "verapamil", pk.Affected.ID)
}

func TestBuildPairReports_MixedDirection(t *testing.T) {
	up := domain.Finding{ID: "u", Kind: domain.KindPK, Severity: domain.SeverityMajor, Class: domain.ClassAdjustMonitor,
		Exposure: domain.ExposureIncrease, Affected: &domain.DrugRef{ID: "b"}, Interacting: &domain.DrugRef{ID: "a"}}
	down := domain.Finding{ID: "d", Kind: domain.KindPK, Severity: domain.SeverityCaution, Class: domain.ClassCaution,
		Exposure: domain.ExposureDecrease, Affected: &domain.DrugRef{ID: "a"}, Interacting: &domain.DrugRef{ID: "b"}}

	pairs := BuildPairReports(&domain.EvaluationResult{PK: []domain.Finding{up, down}})

	require.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0].A.ID)
	assert.Equal(t, domain.PKSummaryMixed, pairs[0].PKSummary)
	assert.Equal(t, domain.SeverityMajor, pairs[0].OverallSeverity)
	assert.Equal(t, domain.ClassAdjustMonitor, pairs[0].OverallClass)
	assert.Empty(t, pairs[0].PD)
	assert.NotNil(t, pairs[0].PD)
}
