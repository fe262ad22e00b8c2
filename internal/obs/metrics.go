package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the teacher's prometheus-registered counter/histogram
// shape (internal/obs/metrics.go upstream), retargeted at the coordination
// runtime's own operations instead of lock acquire/renew/release.
type Metrics struct {
	OutcomeTotal     *prometheus.CounterVec   // outcome=HIT|MISS-LEADER|...
	PhaseLatencyMS   *prometheus.HistogramVec // phase=cache.get|leases.acquire|...
	FollowerWaitedMS prometheus.Histogram
	FetcherTotal     *prometheus.CounterVec // role=leader|fallback
	LeaseErrorsTotal *prometheus.CounterVec // phase=leases.release|leases.markReady
}

// NewMetrics constructs and registers metrics against the default
// prometheus registry, exactly as the teacher's NewMetrics does.
func NewMetrics() *Metrics {
	m := &Metrics{
		OutcomeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachelock_outcome_total",
				Help: "Total GetOrSet calls by terminal outcome",
			},
			[]string{"outcome"},
		),
		PhaseLatencyMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cachelock_phase_latency_ms",
				Help:    "Latency of phase-runner-wrapped operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms .. ~2048ms
			},
			[]string{"phase"},
		),
		FollowerWaitedMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cachelock_followers_waited_ms",
			Help:    "Time followers spent in the poll loop before hit/fallback (ms)",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		FetcherTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachelock_fetcher_total",
				Help: "Total fetcher invocations by caller role",
			},
			[]string{"role"},
		),
		LeaseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachelock_lease_errors_total",
				Help: "Total swallowed lease-backend failures (release/markReady)",
			},
			[]string{"phase"},
		),
	}

	prometheus.MustRegister(
		m.OutcomeTotal,
		m.PhaseLatencyMS,
		m.FollowerWaitedMS,
		m.FetcherTotal,
		m.LeaseErrorsTotal,
	)

	return m
}
