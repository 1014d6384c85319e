// Package observability exposes prometheus metrics for the governance
// kernel: retrieval volume, masking activity, and schema migrations.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SearchesTotal counts dual-search requests served.
	SearchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "engram",
		Name:      "searches_total",
		Help:      "Number of dual retrieval searches served.",
	})

	// MaskedHitsTotal counts results returned in masked (redacted) form.
	MaskedHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "engram",
		Name:      "masked_hits_total",
		Help:      "Number of retrieval results masked by scope enforcement.",
	})

	// MigrationsApplied counts governance schema migrations applied.
	MigrationsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "engram",
		Name:      "schema_migrations_applied_total",
		Help:      "Number of governance schema migrations applied.",
	})

	// SessionsIssued counts capability-token sessions minted.
	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "engram",
		Name:      "sessions_issued_total",
		Help:      "Number of capability-token sessions issued.",
	})

	// SearchLatency observes end-to-end dual-search latency.
	SearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "engram",
		Name:      "search_latency_seconds",
		Help:      "Dual retrieval search latency.",
		Buckets:   prometheus.DefBuckets,
	})
)

// ObserveSearch records one served search with its latency and masked count.
func ObserveSearch(elapsed time.Duration, maskedCount int) {
	SearchesTotal.Inc()
	SearchLatency.Observe(elapsed.Seconds())
	if maskedCount > 0 {
		MaskedHitsTotal.Add(float64(maskedCount))
	}
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
