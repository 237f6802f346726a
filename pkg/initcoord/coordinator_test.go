package initcoord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsync-core/pkg/errors"
	"callsync-core/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	m.Run()
}

// TestAcquireCachesInstance tests that a second Acquire returns the cached
// instance without re-running the init function
func TestAcquireCachesInstance(t *testing.T) {
	coord := New(time.Second, time.Second)

	var calls int32
	initFn := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "instance", nil
	}

	first, err := coord.Acquire(context.Background(), "client", initFn, Options{})
	require.NoError(t, err)
	assert.Equal(t, "instance", first)

	second, err := coord.Acquire(context.Background(), "client", initFn, Options{})
	require.NoError(t, err)
	assert.Equal(t, "instance", second)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, StateReady, coord.StateOf("client"))
}

// TestConcurrentAcquireSingleFlight tests that concurrent Acquire calls share
// one initialization and resolve to the same instance
func TestConcurrentAcquireSingleFlight(t *testing.T) {
	coord := New(5*time.Second, time.Second)

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	initFn := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return &struct{ id int }{id: 42}, nil
	}

	const waiters = 8
	results := make([]any, waiters)
	errs := make([]error, waiters)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = coord.Acquire(context.Background(), "session", initFn, Options{})
	}()
	<-started

	for i := 1; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Acquire(context.Background(), "session", initFn, Options{})
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

// TestAcquireRetriesThenSucceeds tests the retry schedule
func TestAcquireRetriesThenSucceeds(t *testing.T) {
	coord := New(time.Second, time.Second)

	var calls int32
	initFn := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, fmt.Errorf("transient failure")
		}
		return "ready", nil
	}

	instance, err := coord.Acquire(context.Background(), "flaky", initFn, Options{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})

	require.NoError(t, err)
	assert.Equal(t, "ready", instance)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

// TestAcquireFailureExhaustsRetries tests that the last error is returned
func TestAcquireFailureExhaustsRetries(t *testing.T) {
	coord := New(time.Second, time.Second)

	initFn := func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("permanent failure")
	}

	instance, err := coord.Acquire(context.Background(), "broken", initFn, Options{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})

	require.Error(t, err)
	assert.Nil(t, instance)
	assert.Equal(t, StateFailed, coord.StateOf("broken"))
}

// TestTimeoutEntersCooldown tests that a timed-out resource is not retried
// during its cool-down window
func TestTimeoutEntersCooldown(t *testing.T) {
	coord := New(10*time.Millisecond, time.Minute)

	var calls int32
	hang := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := coord.Acquire(context.Background(), "hung", hang, Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInitTimeout))
	assert.Equal(t, StateTimedOut, coord.StateOf("hung"))

	// Within cool-down: returned immediately without calling initFn again
	_, err = coord.Acquire(context.Background(), "hung", hang, Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInitTimeout))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestForceReinitBypassesCooldown tests that ForceReinit re-runs the init
// function even during a cool-down window
func TestForceReinitBypassesCooldown(t *testing.T) {
	coord := New(10*time.Millisecond, time.Minute)

	var calls int32
	initFn := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return "recovered", nil
	}

	_, err := coord.Acquire(context.Background(), "device", initFn, Options{})
	require.Error(t, err)

	instance, err := coord.Acquire(context.Background(), "device", initFn, Options{ForceReinit: true})
	require.NoError(t, err)
	assert.Equal(t, "recovered", instance)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestForceReinitReplacesCachedInstance tests ForceReinit on a ready resource
func TestForceReinitReplacesCachedInstance(t *testing.T) {
	coord := New(time.Second, time.Second)

	var calls int32
	initFn := func(ctx context.Context) (any, error) {
		return fmt.Sprintf("instance-%d", atomic.AddInt32(&calls, 1)), nil
	}

	first, err := coord.Acquire(context.Background(), "client", initFn, Options{})
	require.NoError(t, err)
	assert.Equal(t, "instance-1", first)

	second, err := coord.Acquire(context.Background(), "client", initFn, Options{ForceReinit: true})
	require.NoError(t, err)
	assert.Equal(t, "instance-2", second)
}

// TestAwaitHonorsCallerContext tests that a waiter can give up without
// affecting the in-flight initialization
func TestAwaitHonorsCallerContext(t *testing.T) {
	coord := New(5*time.Second, time.Second)

	release := make(chan struct{})
	initFn := func(ctx context.Context) (any, error) {
		<-release
		return "slow", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := coord.Acquire(ctx, "slow", initFn, Options{})
		errCh <- err
	}()

	// Let the init start, then abandon the wait
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The initialization itself still completes for later callers
	close(release)
	instance, err := coord.Acquire(context.Background(), "slow", initFn, Options{})
	require.NoError(t, err)
	assert.Equal(t, "slow", instance)
}

// TestCleanupResetsResource tests that Cleanup discards the cached instance
func TestCleanupResetsResource(t *testing.T) {
	coord := New(time.Second, time.Second)

	var calls int32
	initFn := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "instance", nil
	}

	_, err := coord.Acquire(context.Background(), "client", initFn, Options{})
	require.NoError(t, err)

	coord.Cleanup("client")
	assert.Equal(t, StateIdle, coord.StateOf("client"))

	_, err = coord.Acquire(context.Background(), "client", initFn, Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestEmergencyCleanupAll tests that every record is discarded
func TestEmergencyCleanupAll(t *testing.T) {
	coord := New(time.Second, time.Second)

	initFn := func(ctx context.Context) (any, error) { return "x", nil }
	_, err := coord.Acquire(context.Background(), "a", initFn, Options{})
	require.NoError(t, err)
	_, err = coord.Acquire(context.Background(), "b", initFn, Options{})
	require.NoError(t, err)

	coord.EmergencyCleanupAll()

	assert.Equal(t, StateIdle, coord.StateOf("a"))
	assert.Equal(t, StateIdle, coord.StateOf("b"))
}
