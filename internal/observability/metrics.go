// Package observability wires Prometheus metrics for the engine's
// payment, routing and graph-cache operations (spec.md's ambient
// observability concern; no HTTP surface is wired by this module itself
// beyond exposing a promhttp.Handler for callers to mount).
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the counters and histograms the engine's operations
// report against. Nil-safety is not provided; callers always get one
// from New.
type Metrics struct {
	registry *prometheus.Registry

	paymentAttempts  *prometheus.CounterVec
	routeDuration    prometheus.Histogram
	commitRetries    prometheus.Counter
	graphRebuilds    *prometheus.CounterVec
	cacheVersion     prometheus.Gauge
	auditViolations  *prometheus.CounterVec
}

// New registers and returns a fresh metric set, isolated from the
// default global registry so tests can construct as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		paymentAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "payment_attempts_total",
			Help:      "Payment attempts by outcome (completed, failed).",
		}, []string{"status"}),
		routeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledgerd",
			Name:      "route_solve_duration_seconds",
			Help:      "Time spent in the min-cost router per payment attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		commitRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "commit_retries_total",
			Help:      "Total CommitPayment retries due to LimitCollision.",
		}),
		graphRebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "graph_rebuilds_total",
			Help:      "Full graph cache rebuilds by trigger (startup, delete_node, cli).",
		}, []string{"trigger"}),
		cacheVersion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledgerd",
			Name:      "graph_cache_version",
			Help:      "Current structural version of the cached flow graphs.",
		}),
		auditViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "audit_violations_total",
			Help:      "Violations found by the most recent audit run, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(prometheus.NewGoCollector())
	return m
}

// Handler returns an http.Handler serving this Metrics' registry in the
// Prometheus exposition format, for callers to mount under /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePaymentAttempt records the terminal status of one AttemptPayment call.
func (m *Metrics) ObservePaymentAttempt(status string) {
	m.paymentAttempts.WithLabelValues(status).Inc()
}

// TimeRouteSolve returns a func to call when the router.Solve call completes.
func (m *Metrics) TimeRouteSolve() func() {
	start := time.Now()
	return func() { m.routeDuration.Observe(time.Since(start).Seconds()) }
}

// ObserveCommitRetry records one LimitCollision retry.
func (m *Metrics) ObserveCommitRetry() {
	m.commitRetries.Inc()
}

// ObserveGraphRebuild records a full cache rebuild triggered by trigger.
func (m *Metrics) ObserveGraphRebuild(trigger string) {
	m.graphRebuilds.WithLabelValues(trigger).Inc()
}

// SetCacheVersion records the cache's current structural version.
func (m *Metrics) SetCacheVersion(v uint64) {
	m.cacheVersion.Set(float64(v))
}

// ObserveAuditViolations records the violation counts from one audit.Report.
func (m *Metrics) ObserveAuditViolations(accountViolations, paymentViolations int) {
	m.auditViolations.WithLabelValues("account").Add(float64(accountViolations))
	m.auditViolations.WithLabelValues("payment").Add(float64(paymentViolations))
}
