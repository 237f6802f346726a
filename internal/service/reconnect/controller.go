package reconnect

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"callsync-core/internal/domain"
	"callsync-core/pkg/logger"
	"callsync-core/pkg/metrics"
)

// Target is the degraded connection being recovered. A Reconnect call that
// returns without error is not trusted on its own; IsConnected is always
// re-checked.
type Target interface {
	Reconnect(ctx context.Context) error
	IsConnected() bool
}

// NetworkMonitor supplies the live network-quality signal that gates attempts
type NetworkMonitor interface {
	Quality() domain.NetworkQuality
	Subscribe(handler func(quality domain.NetworkQuality)) (unsubscribe func())
}

// Callbacks notify the host application about reconnection outcomes. The
// terminal callbacks fire exactly once per session.
type Callbacks struct {
	OnStarted   func(sessionID string)
	OnSucceeded func(sessionID string, attempts int, totalDuration time.Duration)
	OnFailed    func(sessionID string, attempts int)
}

// DefaultConfig returns the production backoff schedule
func DefaultConfig() domain.ReconnectConfig {
	return domain.ReconnectConfig{
		MaxAttempts:                    5,
		BaseDelay:                      time.Second,
		MaxDelay:                       30 * time.Second,
		BackoffMultiplier:              2.0,
		JitterRatio:                    0.25,
		EnableNetworkAwareReconnection: true,
		MinNetworkQuality:              domain.NetworkQualityPoor,
	}
}

// session is the in-flight recovery state for one logical connection
type session struct {
	rec         *domain.ReconnectionSession
	target      Target
	callbacks   Callbacks
	cancel      context.CancelFunc
	resumeCh    chan struct{}
	unsubscribe func()
	finished    bool
}

// Controller retries a caller-supplied reconnect operation with exponential
// backoff and jitter, gated by network quality. One controller serves the
// whole process.
type Controller struct {
	mu       sync.Mutex
	sessions map[string]*session
	monitor  NetworkMonitor

	// rng is overridable for deterministic jitter in tests
	rng func() float64

	// sleep is overridable so tests do not wait on real timers
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates a Controller. monitor may be nil, which disables
// network-aware gating regardless of config.
func NewController(monitor NetworkMonitor) *Controller {
	return &Controller{
		sessions: make(map[string]*session),
		monitor:  monitor,
		rng:      rand.Float64,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start begins a recovery sequence for sessionID. Starting an id that is
// already recovering is a no-op.
func (c *Controller) Start(sessionID string, target Target, cfg domain.ReconnectConfig, callbacks Callbacks) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}

	c.mu.Lock()
	if _, exists := c.sessions[sessionID]; exists {
		c.mu.Unlock()
		logger.Debug("Reconnection already in progress", zap.String("session_id", sessionID))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		rec: &domain.ReconnectionSession{
			SessionID: sessionID,
			State:     domain.ReconnectStateAttempting,
			Config:    cfg,
			StartedAt: time.Now(),
		},
		target:    target,
		callbacks: callbacks,
		cancel:    cancel,
		resumeCh:  make(chan struct{}, 1),
	}
	c.sessions[sessionID] = sess

	// The quality listener resumes a paused chain automatically
	if cfg.EnableNetworkAwareReconnection && c.monitor != nil {
		sess.unsubscribe = c.monitor.Subscribe(func(quality domain.NetworkQuality) {
			if quality >= cfg.MinNetworkQuality {
				select {
				case sess.resumeCh <- struct{}{}:
				default:
				}
			}
		})
	}
	c.mu.Unlock()

	logger.Info("Reconnection started",
		zap.String("session_id", sessionID),
		zap.Int("max_attempts", cfg.MaxAttempts))

	if callbacks.OnStarted != nil {
		callbacks.OnStarted(sessionID)
	}

	go c.run(ctx, sess)
}

// Stop cancels any pending attempt and removes the session. Safe to call
// when no session is active; the terminal callbacks do not fire.
func (c *Controller) Stop(sessionID string) {
	c.mu.Lock()
	sess, exists := c.sessions[sessionID]
	if exists {
		sess.finished = true
		sess.cancel()
		if sess.unsubscribe != nil {
			sess.unsubscribe()
			sess.unsubscribe = nil
		}
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()

	if exists {
		metrics.ReconnectSessionOutcomeTotal.WithLabelValues("cancelled").Inc()
		logger.Info("Reconnection cancelled", zap.String("session_id", sessionID))
	}
}

// Session returns a copy of the tracked state for sessionID
func (c *Controller) Session(sessionID string) (*domain.ReconnectionSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, exists := c.sessions[sessionID]
	if !exists {
		return nil, false
	}
	snapshot := *sess.rec
	snapshot.Attempts = append([]domain.ReconnectAttempt(nil), sess.rec.Attempts...)
	return &snapshot, true
}

// run drives the attempt loop until verified success, exhaustion, or cancel
func (c *Controller) run(ctx context.Context, sess *session) {
	cfg := sess.rec.Config

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		// Network gate: pause rather than burn an attempt while the link is
		// unusable. The attempt counter is preserved across the pause.
		if err := c.waitForNetwork(ctx, sess); err != nil {
			return
		}

		delay := c.backoffDelay(attempt, cfg)
		if err := c.sleep(ctx, delay); err != nil {
			return
		}

		started := time.Now()
		c.mu.Lock()
		sess.rec.Attempts = append(sess.rec.Attempts, domain.ReconnectAttempt{
			Index:     attempt,
			StartedAt: started,
		})
		c.mu.Unlock()

		logger.Info("Reconnection attempt",
			zap.String("session_id", sess.rec.SessionID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		err := sess.target.Reconnect(ctx)
		if ctx.Err() != nil {
			// Cancelled mid-call; the late result is ignored
			return
		}

		// Returning without error is not proof of a live connection
		verified := err == nil && sess.target.IsConnected()

		c.mu.Lock()
		last := &sess.rec.Attempts[len(sess.rec.Attempts)-1]
		last.Succeeded = verified
		last.Duration = time.Since(started)
		if err != nil {
			last.Error = err.Error()
		}
		c.mu.Unlock()

		if verified {
			metrics.ReconnectAttemptTotal.WithLabelValues("success").Inc()
			c.finish(sess, domain.ReconnectStateSuccess, attempt)
			return
		}

		if err == nil {
			metrics.ReconnectAttemptTotal.WithLabelValues("unverified").Inc()
			logger.Warn("Reconnect returned but connection not verified",
				zap.String("session_id", sess.rec.SessionID),
				zap.Int("attempt", attempt))
		} else {
			metrics.ReconnectAttemptTotal.WithLabelValues("failure").Inc()
			logger.Warn("Reconnection attempt failed",
				zap.String("session_id", sess.rec.SessionID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
	}

	c.finish(sess, domain.ReconnectStateFailed, cfg.MaxAttempts)
}

// waitForNetwork blocks while network quality is below the configured
// minimum. Resumption re-enters the same attempt counter.
func (c *Controller) waitForNetwork(ctx context.Context, sess *session) error {
	cfg := sess.rec.Config
	if !cfg.EnableNetworkAwareReconnection || c.monitor == nil {
		return ctx.Err()
	}

	paused := false
	for c.monitor.Quality() < cfg.MinNetworkQuality {
		if !paused {
			paused = true
			c.mu.Lock()
			sess.rec.PausedForNetwork = true
			c.mu.Unlock()
			metrics.ReconnectPausedForNetwork.Inc()
			logger.Info("Reconnection paused for network quality",
				zap.String("session_id", sess.rec.SessionID),
				zap.String("quality", c.monitor.Quality().String()),
				zap.String("min_quality", cfg.MinNetworkQuality.String()))
		}

		select {
		case <-ctx.Done():
			if paused {
				metrics.ReconnectPausedForNetwork.Dec()
			}
			return ctx.Err()
		case <-sess.resumeCh:
			// Loop re-checks quality; spurious wakeups are harmless
		}
	}

	if paused {
		c.mu.Lock()
		sess.rec.PausedForNetwork = false
		c.mu.Unlock()
		metrics.ReconnectPausedForNetwork.Dec()
		logger.Info("Reconnection resumed, network recovered",
			zap.String("session_id", sess.rec.SessionID))
	}

	return ctx.Err()
}

// backoffDelay computes min(maxDelay, baseDelay * multiplier^(n-1)) perturbed
// by up to ±jitterRatio to avoid synchronized retry storms across devices
func (c *Controller) backoffDelay(attempt int, cfg domain.ReconnectConfig) time.Duration {
	base := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}

	jitter := (c.rng()*2 - 1) * cfg.JitterRatio * base
	delay := time.Duration(base + jitter)

	if delay < 0 {
		delay = 0
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// finish publishes the terminal outcome exactly once and removes the session
func (c *Controller) finish(sess *session, state domain.ReconnectState, attempts int) {
	c.mu.Lock()
	if sess.finished {
		c.mu.Unlock()
		return
	}
	sess.finished = true
	sess.rec.State = state
	if sess.unsubscribe != nil {
		sess.unsubscribe()
		sess.unsubscribe = nil
	}
	delete(c.sessions, sess.rec.SessionID)
	totalDuration := time.Since(sess.rec.StartedAt)
	c.mu.Unlock()

	metrics.ReconnectSessionDuration.Observe(totalDuration.Seconds())

	if state == domain.ReconnectStateSuccess {
		metrics.ReconnectSessionOutcomeTotal.WithLabelValues("success").Inc()
		logger.Info("Reconnection succeeded",
			zap.String("session_id", sess.rec.SessionID),
			zap.Int("attempts", attempts),
			zap.Duration("total_duration", totalDuration))
		if sess.callbacks.OnSucceeded != nil {
			sess.callbacks.OnSucceeded(sess.rec.SessionID, attempts, totalDuration)
		}
		return
	}

	metrics.ReconnectSessionOutcomeTotal.WithLabelValues("exhausted").Inc()
	logger.Error("Reconnection attempts exhausted",
		zap.String("session_id", sess.rec.SessionID),
		zap.Int("attempts", attempts))
	if sess.callbacks.OnFailed != nil {
		sess.callbacks.OnFailed(sess.rec.SessionID, attempts)
	}
}
