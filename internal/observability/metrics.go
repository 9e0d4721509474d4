// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sphere_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// RedisBreakerState is 0 closed, 1 half-open, 2 open.
	RedisBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sphere_redis_circuit_breaker_state",
		Help: "Redis circuit breaker state (0 closed, 1 half-open, 2 open)",
	})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sphere_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// StoreUnavailableTotal counts datastore calls that timed out or lost their connection.
	StoreUnavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sphere_store_unavailable_total",
		Help: "Datastore calls that failed with a timeout or connection error",
	}, []string{"operation"})

	// EngagementToggles counts like/favorite toggles by kind and outcome.
	EngagementToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sphere_engagement_toggles_total",
		Help: "Like and favorite toggles by kind and result",
	}, []string{"kind", "result"})

	// FollowOperations counts follow graph mutations by operation and outcome.
	FollowOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sphere_follow_operations_total",
		Help: "Follow and unfollow calls by operation and result",
	}, []string{"operation", "result"})

	// FeedBuildLatency records how long assembling a feed takes.
	FeedBuildLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sphere_feed_build_latency_seconds",
		Help:    "Feed assembly latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"feed"})

	// FeedSharedBuilds counts feed requests served from an in-flight build of the same feed.
	FeedSharedBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sphere_feed_shared_builds_total",
		Help: "Feed requests that joined an identical in-flight build",
	}, []string{"feed"})

	// AuthFailures counts rejected tokens and logins by reason.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sphere_auth_failures_total",
		Help: "Authentication failures by reason",
	}, []string{"reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// TrackFeed returns a function that records feed assembly latency when called.
func TrackFeed(feed string) func() {
	start := time.Now()
	return func() {
		FeedBuildLatency.WithLabelValues(feed).Observe(time.Since(start).Seconds())
	}
}
