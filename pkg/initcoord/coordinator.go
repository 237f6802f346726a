package initcoord

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"callsync-core/pkg/errors"
	"callsync-core/pkg/logger"
	"callsync-core/pkg/metrics"
)

// State is the initialization state of a named resource
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateFailed       State = "failed"
	StateTimedOut     State = "timed_out"
)

// InitFunc produces the resource instance. It must honor ctx cancellation.
type InitFunc func(ctx context.Context) (any, error)

// Options control one Acquire call
type Options struct {
	Timeout     time.Duration // per-attempt ceiling; 0 uses the coordinator default
	MaxRetries  int           // retries after the first attempt
	RetryDelay  time.Duration // base delay, doubled per attempt
	ForceReinit bool          // discard a cached instance and run initFn again
}

// record tracks initialization state for one resource id
type record struct {
	state          State
	attemptCount   int
	lastAttemptAt  time.Time
	cachedInstance any
	lastErr        error
	done           chan struct{}      // closed when the in-flight init settles
	cancel         context.CancelFunc // cancels the in-flight init
	cooldownUntil  time.Time          // no re-init after a timeout until this passes
}

// Coordinator guarantees at-most-one concurrent initialization per named
// resource. Concurrent Acquire calls for the same id share the in-flight
// operation and resolve to the same instance.
type Coordinator struct {
	mu      sync.Mutex
	records map[string]*record

	defaultTimeout time.Duration
	cooldown       time.Duration
}

// New creates a Coordinator. defaultTimeout bounds each init attempt;
// cooldown is the window during which a timed-out resource is not retried.
func New(defaultTimeout, cooldown time.Duration) *Coordinator {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &Coordinator{
		records:        make(map[string]*record),
		defaultTimeout: defaultTimeout,
		cooldown:       cooldown,
	}
}

// Acquire returns the initialized instance for resourceID, running initFn at
// most once concurrently. A ready instance is returned without re-invoking
// initFn unless opts.ForceReinit is set.
func (c *Coordinator) Acquire(ctx context.Context, resourceID string, initFn InitFunc, opts Options) (any, error) {
	c.mu.Lock()

	rec, exists := c.records[resourceID]
	if !exists {
		rec = &record{state: StateIdle}
		c.records[resourceID] = rec
	}

	switch rec.state {
	case StateReady:
		if !opts.ForceReinit {
			instance := rec.cachedInstance
			c.mu.Unlock()
			metrics.InitAcquireTotal.WithLabelValues("cached").Inc()
			return instance, nil
		}

	case StateInitializing:
		// Single-flight: join the in-flight operation
		done := rec.done
		c.mu.Unlock()
		metrics.InitAcquireTotal.WithLabelValues("coalesced").Inc()
		return c.await(ctx, resourceID, done)

	case StateTimedOut:
		if !opts.ForceReinit && time.Now().Before(rec.cooldownUntil) {
			err := rec.lastErr
			c.mu.Unlock()
			logger.Warn("Initialization in timeout cool-down, not retrying",
				zap.String("resource_id", resourceID))
			return nil, err
		}
	}

	// Start a fresh initialization
	initCtx, cancel := context.WithCancel(context.Background())
	rec.state = StateInitializing
	rec.done = make(chan struct{})
	rec.cancel = cancel
	rec.cachedInstance = nil
	rec.lastErr = nil
	done := rec.done
	c.mu.Unlock()

	metrics.InitAcquireTotal.WithLabelValues("started").Inc()
	go c.runInit(initCtx, resourceID, rec, initFn, opts)

	return c.await(ctx, resourceID, done)
}

// await blocks until the in-flight init settles or ctx is cancelled
func (c *Coordinator) await(ctx context.Context, resourceID string, done chan struct{}) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, exists := c.records[resourceID]
	if !exists {
		// Cleaned up while we were waiting
		return nil, errors.ServiceUnavailableError("initialization cancelled")
	}
	if rec.state == StateReady {
		return rec.cachedInstance, nil
	}
	return nil, rec.lastErr
}

// runInit executes initFn with a per-attempt timeout and exponential-backoff
// retries, then publishes the result and closes the done channel.
func (c *Coordinator) runInit(ctx context.Context, resourceID string, rec *record, initFn InitFunc, opts Options) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	var finalState State
	var instance any
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		c.mu.Lock()
		rec.attemptCount++
		rec.lastAttemptAt = time.Now()
		c.mu.Unlock()

		if attempt > 0 {
			// Exponential backoff between retries
			delay := retryDelay * (1 << (attempt - 1))
			logger.Warn("Initialization retry",
				zap.String("resource_id", resourceID),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				finalState = StateFailed
				lastErr = ctx.Err()
				goto settle
			case <-time.After(delay):
			}
		}

		instance, finalState, lastErr = c.attempt(ctx, resourceID, initFn, timeout)

		if finalState == StateReady {
			break
		}
		if finalState == StateTimedOut {
			// A hung resource is not retried immediately: the cool-down
			// window prevents hot-looping against it
			break
		}
		if ctx.Err() != nil {
			finalState = StateFailed
			lastErr = ctx.Err()
			break
		}
	}

settle:
	c.mu.Lock()
	rec.state = finalState
	rec.lastErr = lastErr
	if finalState == StateReady {
		rec.cachedInstance = instance
	}
	if finalState == StateTimedOut {
		rec.cooldownUntil = time.Now().Add(c.cooldown)
	}
	done := rec.done
	rec.done = nil
	rec.cancel = nil
	c.mu.Unlock()

	switch finalState {
	case StateReady:
		metrics.InitResultTotal.WithLabelValues("ready").Inc()
		logger.Info("Resource initialized", zap.String("resource_id", resourceID))
	case StateTimedOut:
		metrics.InitResultTotal.WithLabelValues("timed_out").Inc()
		logger.Error("Resource initialization timed out",
			zap.String("resource_id", resourceID),
			zap.Duration("timeout", timeout))
	default:
		metrics.InitResultTotal.WithLabelValues("failed").Inc()
		logger.Error("Resource initialization failed",
			zap.String("resource_id", resourceID),
			zap.Error(lastErr))
	}

	close(done)
}

// attempt races one initFn invocation against the timeout
func (c *Coordinator) attempt(ctx context.Context, resourceID string, initFn InitFunc, timeout time.Duration) (any, State, error) {
	type result struct {
		instance any
		err      error
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resCh := make(chan result, 1)
	go func() {
		instance, err := initFn(attemptCtx)
		resCh <- result{instance: instance, err: err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, StateFailed, res.err
		}
		return res.instance, StateReady, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// Cancelled from outside, not a timeout
			return nil, StateFailed, ctx.Err()
		}
		// The underlying call may never settle; treat the attempt as failed
		// and let the late return be discarded
		return nil, StateTimedOut, errors.InitTimeoutError(resourceID)
	}
}

// StateOf returns the current state for a resource id, StateIdle if unknown
func (c *Coordinator) StateOf(resourceID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[resourceID]; ok {
		return rec.state
	}
	return StateIdle
}

// Cleanup clears the record for one resource: the cached instance, any
// cool-down, and the in-flight operation (cancelled cooperatively)
func (c *Coordinator) Cleanup(resourceID string) {
	c.mu.Lock()
	rec, ok := c.records[resourceID]
	if ok {
		if rec.cancel != nil {
			rec.cancel()
		}
		delete(c.records, resourceID)
	}
	c.mu.Unlock()

	if ok {
		logger.Debug("Initialization record cleaned up", zap.String("resource_id", resourceID))
	}
}

// EmergencyCleanupAll clears every record and cancels all in-flight
// operations. Used on forced logout or fatal error.
func (c *Coordinator) EmergencyCleanupAll() {
	c.mu.Lock()
	count := len(c.records)
	for _, rec := range c.records {
		if rec.cancel != nil {
			rec.cancel()
		}
	}
	c.records = make(map[string]*record)
	c.mu.Unlock()

	logger.Warn("All initialization records cleared", zap.Int("count", count))
}
