package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters for the coordination hot paths. Exposed via the
// /metrics endpoint mounted by the app.
var (
	CommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boardsync_commits_total",
		Help: "Resource mutations applied through the commit pipeline.",
	})
	CommitFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boardsync_commit_failures_total",
		Help: "Commit pipeline operations that failed to apply.",
	})
	LockDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boardsync_lock_denied_total",
		Help: "Lock acquisitions denied because another actor held the lock.",
	})
	LockForceReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boardsync_lock_force_released_total",
		Help: "Locks force-released by the lease sweeper.",
	})
	EventsBroadcastTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boardsync_events_broadcast_total",
		Help: "Events fanned out to board subscribers.",
	})
	SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boardsync_subscribers",
		Help: "Currently attached board subscribers.",
	})
	QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boardsync_commit_queue_depth",
		Help: "Operations waiting in the commit queue.",
	})
)
