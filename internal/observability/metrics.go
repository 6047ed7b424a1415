package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the PnL engine.
type Metrics struct {
	// --- Replay ---
	ReplayEventsApplied *prometheus.CounterVec
	ReplayDuration      prometheus.Histogram
	ReplayEventCount    prometheus.Histogram
	ReplayPartial       prometheus.Counter
	ReplayUnresolved    prometheus.Counter
	ReplayOversold      prometheus.Counter
	ReplayOrphaned      prometheus.Counter

	// --- Query surface ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// --- Result cache ---
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSkips  prometheus.Counter // recompute already in flight elsewhere

	// --- Refresh worker ---
	RefreshJobs     *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	RefreshInFlight prometheus.Gauge

	// --- Oracle comparison ---
	OracleGapAbs *prometheus.GaugeVec
	OracleGapRel *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	replayBuckets := []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
	}

	return &Metrics{
		ReplayEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pnl_replay_events_applied_total",
			Help: "Events applied by the position tracker",
		}, []string{"kind"}),

		ReplayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pnl_replay_duration_seconds",
			Help:    "Wall-clock time for one full wallet replay",
			Buckets: replayBuckets,
		}),

		ReplayEventCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pnl_replay_event_count",
			Help:    "Events per replay",
			Buckets: []float64{10, 100, 1_000, 10_000, 50_000, 100_000, 500_000},
		}),

		ReplayPartial: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pnl_replay_partial_total",
			Help: "Replays terminated early by the event or wall-clock budget",
		}),

		ReplayUnresolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pnl_replay_unresolved_events_total",
			Help: "Events that failed all resolver stages",
		}),

		ReplayOversold: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pnl_replay_oversold_total",
			Help: "Sell/redeem events exceeding tracked quantity",
		}),

		ReplayOrphaned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pnl_replay_orphaned_conversions_total",
			Help: "Conversions with no resolvable destination outcome",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pnl_query_requests_total",
			Help: "PnL queries by semantics and status",
		}, []string{"semantics", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pnl_query_duration_seconds",
			Help:    "End-to-end query latency by semantics",
			Buckets: replayBuckets,
		}, []string{"semantics"}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pnl_result_cache_hits_total",
			Help: "Replay results served from cache with matching fingerprint",
		}),

		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pnl_result_cache_misses_total",
			Help: "Cache misses or fingerprint mismatches forcing a replay",
		}),

		CacheSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pnl_result_cache_lock_skips_total",
			Help: "Refreshes skipped because another recomputation held the wallet lock",
		}),

		RefreshJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pnl_refresh_jobs_total",
			Help: "Wallet refresh jobs by outcome",
		}, []string{"outcome"}),

		RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pnl_refresh_duration_seconds",
			Help:    "Time to load, replay, and persist one wallet refresh",
			Buckets: replayBuckets,
		}),

		RefreshInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pnl_refresh_in_flight",
			Help: "Wallet refreshes currently being processed",
		}),

		OracleGapAbs: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pnl_oracle_gap_abs",
			Help: "Absolute difference vs the external ground-truth PnL, per wallet",
		}, []string{"wallet"}),

		OracleGapRel: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pnl_oracle_gap_rel",
			Help: "Relative difference vs the external ground-truth PnL, per wallet",
		}, []string{"wallet"}),
	}
}
