package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/internal/domain"
)

func testCollector(enabled bool) *Collector {
	return NewCollector(domain.MetricsConfig{Enabled: enabled, Namespace: "test"}, prometheus.NewRegistry())
}

func TestCollector_ObserveEvaluation(t *testing.T) {
	c := testCollector(true)
	res := &domain.EvaluationResult{
		PK: []domain.Finding{
			{RuleID: "PK_CYP3A4_STRONG_INHIB", Kind: domain.KindPK, Severity: domain.SeverityMajor},
		},
		Composite: []domain.Finding{
			{RuleID: "COMP_PK_UP_CNS_DEPRESSION", Kind: domain.KindComposite, Severity: domain.SeverityMajor},
		},
	}

	// Act
	c.ObserveEvaluation("interactions", 2*time.Millisecond, res)
	c.ObserveEvaluation("not_found", time.Millisecond, nil)

	// Assert
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("interactions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ruleHits.WithLabelValues("PK_CYP3A4_STRONG_INHIB")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.findings.WithLabelValues("composite", "major")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.evaluations))
}

func TestCollector_ObserveReload(t *testing.T) {
	c := testCollector(true)

	c.ObserveReload("success", 3)
	c.ObserveReload("failure", 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.snapshotVersion))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reloads.WithLabelValues("failure")))

	expected := `
# HELP test_snapshot_reloads_total Total number of snapshot reload attempts by result
# TYPE test_snapshot_reloads_total counter
test_snapshot_reloads_total{result="failure"} 1
test_snapshot_reloads_total{result="success"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c.reloads, strings.NewReader(expected)))
}

func TestCollector_ObserveCacheAndHTTP(t *testing.T) {
	c := testCollector(true)

	c.ObserveCache("memory", "hit")
	c.ObserveCache("memory", "hit")
	c.ObserveHTTP(http.MethodPost, "/api/v1/interactions", http.StatusOK, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheRequests.WithLabelValues("memory", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/api/v1/interactions", "200")))
}

func TestCollector_Disabled(t *testing.T) {
	c := testCollector(false)

	c.ObserveEvaluation("none", time.Millisecond, &domain.EvaluationResult{})
	c.ObserveReload("success", 1)
	c.ObserveCache("memory", "miss")

	assert.Zero(t, testutil.ToFloat64(c.evaluations.WithLabelValues("none")))
	assert.Zero(t, testutil.ToFloat64(c.snapshotVersion))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(domain.MetricsConfig{Enabled: true}, nil)
	c.SetSnapshotVersion(7)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pharmds_snapshot_version 7")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
