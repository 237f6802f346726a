package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconnection and initialization metrics
var (
	// Reconnection metrics
	ReconnectAttemptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconnect_attempt_total",
		Help: "Total number of reconnection attempts",
	}, []string{"status"}) // "success", "failure", "unverified"

	ReconnectSessionOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconnect_session_outcome_total",
		Help: "Total number of reconnection sessions by final outcome",
	}, []string{"outcome"}) // "success", "exhausted", "cancelled"

	ReconnectSessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconnect_session_duration_seconds",
		Help:    "Time from first disconnect to reconnection session end",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	ReconnectPausedForNetwork = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reconnect_paused_for_network",
		Help: "Current number of reconnection sessions paused for network quality",
	})

	// Initialization coordinator metrics
	InitAcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "init_acquire_total",
		Help: "Total number of initialization acquire calls",
	}, []string{"outcome"}) // "cached", "coalesced", "started"

	InitResultTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "init_result_total",
		Help: "Total number of initialization results",
	}, []string{"status"}) // "ready", "failed", "timed_out"
)
