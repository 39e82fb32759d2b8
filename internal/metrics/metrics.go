package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink is the explicitly constructed metrics handle threaded through the
// aggregator, fetchers, and conversion flow. Recording is a side effect
// only and never affects correctness.
type Sink struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	upstreamLatency  *prometheus.SummaryVec

	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	snapshotRefreshes prometheus.Counter

	sessionsCreated   prometheus.Counter
	paymentsCompleted prometheus.Counter
	paymentsFailed    prometheus.Counter

	mu    sync.Mutex
	calls map[string]*callStats
	hits  uint64
	miss  uint64
}

type callStats struct {
	Calls    uint64
	Failures uint64
	totalNs  int64
}

// SourceStats is the per-source observability readout for the admin surface.
type SourceStats struct {
	Calls      uint64  `json:"calls"`
	Failures   uint64  `json:"failures"`
	AvgLatency float64 `json:"avg_latency_ms"`
}

// NewSink builds a sink backed by its own prometheus registry.
func NewSink() *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horizonpay_upstream_requests_total",
			Help: "Upstream fetch attempts per source",
		}, []string{"source"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horizonpay_upstream_failures_total",
			Help: "Upstream fetch failures per source",
		}, []string{"source"}),
		upstreamLatency: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "horizonpay_upstream_latency_seconds",
			Help: "Upstream fetch latency per source",
		}, []string{"source"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "horizonpay_snapshot_cache_hits_total",
			Help: "Market snapshot cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "horizonpay_snapshot_cache_misses_total",
			Help: "Market snapshot cache misses",
		}),
		snapshotRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "horizonpay_snapshot_refreshes_total",
			Help: "Completed market snapshot refreshes",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "horizonpay_sessions_created_total",
			Help: "Transaction sessions created",
		}),
		paymentsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "horizonpay_payments_completed_total",
			Help: "Payments transitioned to completed",
		}),
		paymentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "horizonpay_payments_failed_total",
			Help: "Payments transitioned to failed",
		}),
		calls: map[string]*callStats{},
	}

	s.registry.MustRegister(
		s.upstreamRequests,
		s.upstreamFailures,
		s.upstreamLatency,
		s.cacheHits,
		s.cacheMisses,
		s.snapshotRefreshes,
		s.sessionsCreated,
		s.paymentsCompleted,
		s.paymentsFailed,
	)
	return s
}

// RecordFetch accounts one upstream call: count, failure count, latency.
func (s *Sink) RecordFetch(source string, took time.Duration, failed bool) {
	s.upstreamRequests.WithLabelValues(source).Inc()
	s.upstreamLatency.WithLabelValues(source).Observe(took.Seconds())
	if failed {
		s.upstreamFailures.WithLabelValues(source).Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.calls[source]
	if cs == nil {
		cs = &callStats{}
		s.calls[source] = cs
	}
	cs.Calls++
	cs.totalNs += took.Nanoseconds()
	if failed {
		cs.Failures++
	}
}

func (s *Sink) CacheHit() {
	s.cacheHits.Inc()
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
}

func (s *Sink) CacheMiss() {
	s.cacheMisses.Inc()
	s.mu.Lock()
	s.miss++
	s.mu.Unlock()
}

func (s *Sink) SnapshotRefreshed() {
	s.snapshotRefreshes.Inc()
}

func (s *Sink) SessionCreated() {
	s.sessionsCreated.Inc()
}

func (s *Sink) PaymentCompleted() {
	s.paymentsCompleted.Inc()
}

func (s *Sink) PaymentFailed() {
	s.paymentsFailed.Inc()
}

// CacheStats returns hit/miss counters since startup (or the last reset).
func (s *Sink) CacheStats() (hits, misses uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.miss
}

// ResetCacheStats zeroes the admin-facing hit/miss counters. Prometheus
// counters are monotonic and left untouched.
func (s *Sink) ResetCacheStats() {
	s.mu.Lock()
	s.hits, s.miss = 0, 0
	s.mu.Unlock()
}

// UpstreamStats returns the per-source call/failure/latency readout.
func (s *Sink) UpstreamStats() map[string]SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]SourceStats, len(s.calls))
	for source, cs := range s.calls {
		stat := SourceStats{Calls: cs.Calls, Failures: cs.Failures}
		if cs.Calls > 0 {
			stat.AvgLatency = float64(cs.totalNs) / float64(cs.Calls) / 1e6
		}
		out[source] = stat
	}
	return out
}

// Handler exposes the sink's registry for the /metrics endpoint.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
