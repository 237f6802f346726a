package domain

import (
	"time"
)

// NetworkQuality is an ordered classification of current link quality
type NetworkQuality int

const (
	NetworkQualityNone NetworkQuality = iota
	NetworkQualityPoor
	NetworkQualityFair
	NetworkQualityGood
	NetworkQualityExcellent
)

// String returns the quality name for logging
func (q NetworkQuality) String() string {
	switch q {
	case NetworkQualityNone:
		return "none"
	case NetworkQualityPoor:
		return "poor"
	case NetworkQualityFair:
		return "fair"
	case NetworkQualityGood:
		return "good"
	case NetworkQualityExcellent:
		return "excellent"
	}
	return "unknown"
}

// ReconnectState is the lifecycle state of a reconnection session
type ReconnectState string

const (
	ReconnectStateIdle       ReconnectState = "idle"
	ReconnectStateAttempting ReconnectState = "attempting"
	ReconnectStateSuccess    ReconnectState = "success"
	ReconnectStateFailed     ReconnectState = "failed"
)

// ReconnectConfig controls the backoff schedule and network gating of a
// reconnection session
type ReconnectConfig struct {
	MaxAttempts                  int
	BaseDelay                    time.Duration
	MaxDelay                     time.Duration
	BackoffMultiplier            float64
	JitterRatio                  float64
	EnableNetworkAwareReconnection bool
	MinNetworkQuality            NetworkQuality
}

// ReconnectAttempt records one reconnection attempt within a session
type ReconnectAttempt struct {
	Index     int           `json:"index"`
	StartedAt time.Time     `json:"started_at"`
	Succeeded bool          `json:"succeeded"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ms,omitempty"`
}

// ReconnectionSession tracks one recovery attempt sequence for one logical
// connection
type ReconnectionSession struct {
	SessionID        string             `json:"session_id"`
	State            ReconnectState     `json:"state"`
	Attempts         []ReconnectAttempt `json:"attempts"`
	Config           ReconnectConfig    `json:"-"`
	PausedForNetwork bool               `json:"paused_for_network"`
	StartedAt        time.Time          `json:"started_at"`
}
