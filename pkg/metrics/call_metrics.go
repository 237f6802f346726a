package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call session metrics for monitoring lifecycle transitions and presentation
var (
	// Lifecycle metrics
	CallSessionCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_session_created_total",
		Help: "Total number of call sessions created",
	}, []string{"call_kind", "direction"}) // "incoming", "outgoing"

	CallTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_transition_total",
		Help: "Total number of call state transitions",
	}, []string{"from", "to"})

	CallStaleTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_stale_transition_total",
		Help: "Total number of out-of-order or duplicate transitions dropped",
	}, []string{"from", "to"})

	CallConflictRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_conflict_rejected_total",
		Help: "Total number of incoming calls rejected because a session was active",
	})

	CallActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_active_sessions",
		Help: "Current number of non-terminal call sessions",
	})

	CallDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "call_duration_seconds",
		Help:    "Duration of completed calls",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// Presentation fallback chain metrics
	CallPresentationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_presentation_total",
		Help: "Total number of incoming call presentation attempts",
	}, []string{"presenter", "status"})

	// Navigation persistence metrics
	NavigationSnapshotPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_snapshot_persisted_total",
		Help: "Total number of navigation snapshot writes",
	}, []string{"status"})

	NavigationRestoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_restore_total",
		Help: "Total number of navigation restore attempts",
	}, []string{"outcome"}) // "restored", "already_there", "expired", "no_snapshot", "error"

	NavigationGuardReversalTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "navigation_guard_reversal_total",
		Help: "Total number of navigations reversed by the call screen guard",
	})
)
