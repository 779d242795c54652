// Package metrics exposes Prometheus counters for the marker engine and API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecomputeTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wikimap_recompute_total",
		Help: "Total number of marker visibility recomputations",
	})
	AppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wikimap_marker_applied_total",
		Help: "Total number of applied marker show/hide transitions",
	}, []string{"state"})
	TileEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wikimap_tile_events_total",
		Help: "Total number of viewport tile events",
	}, []string{"kind"})
	SearchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wikimap_search_total",
		Help: "Total number of marker searches",
	})
	CompletionSyncFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wikimap_completion_sync_fail_total",
		Help: "Total number of failed account completion store calls",
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wikimap_sessions_active",
		Help: "Number of open map sessions",
	})
)

func init() {
	prometheus.MustRegister(RecomputeTotal)
	prometheus.MustRegister(AppliedTotal)
	prometheus.MustRegister(TileEventsTotal)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(CompletionSyncFailTotal)
	prometheus.MustRegister(SessionsActive)
}

func Handler() http.Handler { return promhttp.Handler() }
