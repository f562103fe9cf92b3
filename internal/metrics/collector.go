// Package metrics exposes the server's Prometheus metrics on a private
// registry.
//
// Metrics (namespace defaults to "pharmds"):
//   - evaluations_total{outcome}: interaction checks by outcome
//   - evaluation_duration_seconds: check latency
//   - findings_total{kind,severity}: findings produced by evaluations
//   - rule_hits_total{rule_id}: findings per rule
//   - snapshot_reloads_total{result}: knowledge base and rule reloads
//   - snapshot_version: version of the published snapshot
//   - cache_requests_total{tier,result}: result cache lookups
//   - http_requests_total{method,route,status} and
//     http_request_duration_seconds{method,route}: API traffic
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pharmds-ddi-server/internal/domain"
)

const defaultNamespace = "pharmds"

// Collector records engine, snapshot, cache and HTTP metrics. All methods
// are no-ops when metrics are disabled.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	findings           *prometheus.CounterVec
	ruleHits           *prometheus.CounterVec
	reloads            *prometheus.CounterVec
	snapshotVersion    prometheus.Gauge
	cacheRequests      *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewCollector creates and registers every metric. A nil registry gets a
// fresh private one with the Go and process collectors attached.
func NewCollector(cfg domain.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}

	c := &Collector{
		enabled:  cfg.Enabled,
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "evaluations_total",
			Help:      "Total number of interaction checks by outcome",
		}, []string{"outcome"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "evaluation_duration_seconds",
			Help:      "Interaction check latency in seconds",
			// Evaluations are in-memory; most finish well under a millisecond.
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1},
		}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "findings_total",
			Help:      "Total number of findings by kind and severity",
		}, []string{"kind", "severity"}),
		ruleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rule_hits_total",
			Help:      "Total number of findings produced per rule",
		}, []string{"rule_id"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "snapshot_reloads_total",
			Help:      "Total number of snapshot reload attempts by result",
		}, []string{"result"}),
		snapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "snapshot_version",
			Help:      "Version of the currently published snapshot",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_requests_total",
			Help:      "Total number of result cache lookups by tier and result",
		}, []string{"tier", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		c.evaluations,
		c.evaluationDuration,
		c.findings,
		c.ruleHits,
		c.reloads,
		c.snapshotVersion,
		c.cacheRequests,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveEvaluation records one interaction check. res is nil for failed
// checks.
func (c *Collector) ObserveEvaluation(outcome string, duration time.Duration, res *domain.EvaluationResult) {
	if !c.enabled {
		return
	}
	c.evaluations.WithLabelValues(outcome).Inc()
	c.evaluationDuration.Observe(duration.Seconds())
	if res == nil {
		return
	}
	for _, f := range res.All() {
		c.findings.WithLabelValues(string(f.Kind), string(f.Severity)).Inc()
		c.ruleHits.WithLabelValues(f.RuleID).Inc()
	}
}

// ObserveReload records a reload attempt and the resulting version.
func (c *Collector) ObserveReload(result string, version uint64) {
	if !c.enabled {
		return
	}
	c.reloads.WithLabelValues(result).Inc()
	c.snapshotVersion.Set(float64(version))
}

// SetSnapshotVersion records the version published at startup.
func (c *Collector) SetSnapshotVersion(version uint64) {
	if !c.enabled {
		return
	}
	c.snapshotVersion.Set(float64(version))
}

// ObserveCache records one result cache lookup.
func (c *Collector) ObserveCache(tier, result string) {
	if !c.enabled {
		return
	}
	c.cacheRequests.WithLabelValues(tier, result).Inc()
}

// ObserveHTTP records one API request. route is the matched route pattern,
// never the raw path.
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
