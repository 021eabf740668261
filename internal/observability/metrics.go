package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SwipesTotal counts recorded swipes by direction.
	SwipesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindred_swipes_total",
		Help: "Total number of recorded swipes by direction",
	}, []string{"direction"})

	// MatchesCreated counts newly created matches.
	MatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kindred_matches_created_total",
		Help: "Total number of matches created",
	})

	// HostTransitions counts host session stage entries.
	HostTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindred_host_transitions_total",
		Help: "Host session stage transitions by target stage",
	}, []string{"stage"})

	// ReportsTotal counts accepted reports by category.
	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindred_reports_total",
		Help: "Total number of reports by category",
	}, []string{"category"})

	// MediaDeleteFailures counts media objects left behind by a cleanup.
	MediaDeleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kindred_media_delete_failures_total",
		Help: "Media deletions that failed after a match was removed",
	})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kindred_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketEventsTotal counts realtime events delivered by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindred_websocket_events_total",
		Help: "Total realtime events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindred_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
