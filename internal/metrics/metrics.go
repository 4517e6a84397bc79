// Package metrics defines the Prometheus collectors shared across the
// application. Collectors are registered via promauto on the default
// registry and served from the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream feed metrics
var (
	// HeartbeatsApplied counts heartbeats applied to the state store.
	HeartbeatsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_heartbeats_applied_total",
		Help: "Total heartbeats applied to the state store",
	})

	// HeartbeatKeysSkipped counts malformed remaining_scenes keys dropped.
	HeartbeatKeysSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_heartbeat_keys_skipped_total",
		Help: "Total malformed heartbeat keys skipped",
	})

	// FeedReconnects counts reconnection attempts to the upstream feed.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_reconnects_total",
		Help: "Total upstream feed reconnection attempts",
	})

	// FeedFramesDropped counts inbound feed frames dropped as malformed.
	FeedFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_frames_dropped_total",
		Help: "Total malformed upstream frames dropped",
	})

	// FeedConnected reports whether the upstream feed connection is live.
	FeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_connected",
		Help: "1 when the upstream feed connection is open, 0 otherwise",
	})

	// TrackedScenes reports the size of the flat scene view after the last heartbeat.
	TrackedScenes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "state_tracked_scenes",
		Help: "Number of outstanding scenes in the latest heartbeat",
	})
)

// Broadcast hub metrics
var (
	// ConnectedSubscribers reports the live downstream subscriber count.
	ConnectedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_connected_subscribers",
		Help: "Number of connected downstream subscribers",
	})

	// BroadcastsSent counts state frames delivered to subscribers.
	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_broadcasts_sent_total",
		Help: "Total scenes frames queued to subscribers",
	})

	// BroadcastFailures counts broadcasts aborted by a catalog read failure.
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_broadcast_failures_total",
		Help: "Total broadcasts aborted because the catalog read failed",
	})

	// SlowSubscribersEvicted counts subscribers dropped for full send buffers.
	SlowSubscribersEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_slow_subscribers_evicted_total",
		Help: "Total subscribers evicted because their send buffer was full",
	})

	// FeedbackRecorded counts feedback frames forwarded for persistence.
	FeedbackRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_feedback_recorded_total",
		Help: "Total feedback frames forwarded to the recorder, by outcome",
	}, []string{"outcome"})
)

// Post cache metrics
var (
	// CacheHits counts post cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postcache_hits_total",
		Help: "Total post cache hits",
	})

	// CacheMisses counts post cache misses, including TTL expiries.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postcache_misses_total",
		Help: "Total post cache misses (absent or expired)",
	})

	// CacheSize reports the number of entries held, including expired ones.
	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postcache_entries",
		Help: "Post cache entries currently held (expired entries included)",
	})
)

// External lookup metrics
var (
	// LookupRequests counts calls to the external lookup API by result.
	LookupRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookup_requests_total",
		Help: "Total external lookup API calls, by result",
	}, []string{"result"})

	// LookupDuration observes external lookup latency.
	LookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lookup_request_duration_seconds",
		Help:    "External lookup API latency",
		Buckets: prometheus.DefBuckets,
	})

	// LookupBreakerOpen reports whether the lookup circuit breaker is open.
	LookupBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lookup_breaker_open",
		Help: "1 when the lookup circuit breaker is open, 0 otherwise",
	})
)
