package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsync-core/internal/domain"
	"callsync-core/pkg/logger"
	"callsync-core/pkg/metrics"
)

// snapshotStorageKey is the single durable key holding the call snapshot.
// The general screen-navigation state uses its own key (see navstate.go).
const snapshotStorageKey = "nav:call_snapshot"

// RestoreCallParam is the marker added to screen parameters when a restore
// transition is issued
const RestoreCallParam = "restoreCall"

// Navigator is the screen-stack transition engine
type Navigator interface {
	Navigate(ctx context.Context, screenID string, params map[string]string) error
	CurrentScreen() string
}

// Store is the durable key-value store backing snapshot persistence
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// Config controls snapshot expiry
type Config struct {
	// MaxBackgroundDuration is the ceiling on time away from the app before
	// an active call is treated as abandoned
	MaxBackgroundDuration time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MaxBackgroundDuration: 5 * time.Minute,
	}
}

// Coordinator snapshots where the user currently is during an active call,
// persists it durably, restores it on relaunch, and blocks navigation away
// from the call screen while a call is active.
type Coordinator struct {
	mu        sync.Mutex
	cfg       Config
	store     Store
	navigator Navigator

	snapshot     *domain.NavigationSnapshot // nil when no session is active
	guardEnabled bool
}

// NewCoordinator creates a Coordinator
func NewCoordinator(cfg Config, store Store, navigator Navigator) *Coordinator {
	if cfg.MaxBackgroundDuration <= 0 {
		cfg.MaxBackgroundDuration = DefaultConfig().MaxBackgroundDuration
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		navigator: navigator,
	}
}

// StartSessionInput carries the context the active call owns
type StartSessionInput struct {
	CallID                  uuid.UUID
	CallKind                domain.CallKind
	TargetScreenID          string
	ScreenParams            map[string]string
	CounterpartyDisplayName string
	CounterpartyRole        domain.CallerRole
	RoomReference           string
}

// StartSession creates and persists the navigation snapshot and enables the
// navigation guard
func (c *Coordinator) StartSession(ctx context.Context, input StartSessionInput) error {
	now := time.Now()
	snapshot := &domain.NavigationSnapshot{
		IsInCall:                true,
		CallID:                  input.CallID,
		CallKind:                input.CallKind,
		CurrentScreen:           input.TargetScreenID,
		ScreenParams:            input.ScreenParams,
		CounterpartyDisplayName: input.CounterpartyDisplayName,
		CounterpartyRole:        input.CounterpartyRole,
		RoomReference:           input.RoomReference,
		CallStartTime:           now.UnixMilli(),
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.guardEnabled = true
	c.mu.Unlock()

	logger.Info("Navigation session started",
		zap.String("call_id", input.CallID.String()),
		zap.String("target_screen", input.TargetScreenID))

	return c.persist(ctx)
}

// EndSession clears the in-memory and persisted snapshot and disables the
// guard. Idempotent: calling it twice, or with no session, is a no-op.
func (c *Coordinator) EndSession(ctx context.Context) error {
	c.mu.Lock()
	hadSession := c.snapshot != nil
	c.snapshot = nil
	c.guardEnabled = false
	c.mu.Unlock()

	if !hadSession {
		logger.Debug("EndSession called with no navigation session")
	} else {
		logger.Info("Navigation session ended")
	}

	// Always clear the persisted copy so a stale record cannot survive a
	// session the in-memory state never saw
	if err := c.store.Delete(ctx, snapshotStorageKey); err != nil {
		logger.Warn("Failed to delete navigation snapshot", zap.Error(err))
		return err
	}
	return nil
}

// OnAppBackgrounded stamps the background transition time and persists the
// snapshot so a later relaunch can restore the call screen
func (c *Coordinator) OnAppBackgrounded(ctx context.Context) error {
	c.mu.Lock()
	if c.snapshot == nil {
		c.mu.Unlock()
		return nil
	}
	now := time.Now().UnixMilli()
	c.snapshot.BackgroundTransitionTime = &now
	c.mu.Unlock()

	logger.Debug("App backgrounded during active call")
	return c.persist(ctx)
}

// OnAppForegrounded attempts to restore the call screen
func (c *Coordinator) OnAppForegrounded(ctx context.Context) domain.RestoreResult {
	return c.AttemptRestore(ctx)
}

// AttemptRestore restores the user to the call screen if a live, non-expired
// snapshot exists. An expired snapshot means the call was abandoned: the
// session is cleared and no navigation is issued.
func (c *Coordinator) AttemptRestore(ctx context.Context) domain.RestoreResult {
	c.mu.Lock()
	snapshot := c.snapshot
	c.mu.Unlock()

	// Cold start: the in-memory snapshot died with the previous process
	if snapshot == nil {
		loaded, expired, err := c.loadPersisted(ctx)
		if err != nil {
			logger.Warn("Failed to load persisted navigation snapshot", zap.Error(err))
			metrics.NavigationRestoreTotal.WithLabelValues("error").Inc()
			return domain.RestoreResult{Success: false, Reason: "snapshot load failed"}
		}
		if expired {
			metrics.NavigationRestoreTotal.WithLabelValues("expired").Inc()
			return domain.RestoreResult{Success: false, Reason: "persisted snapshot expired"}
		}
		if loaded == nil {
			metrics.NavigationRestoreTotal.WithLabelValues("no_snapshot").Inc()
			return domain.RestoreResult{Success: true, RestoredToCallScreen: false}
		}
		c.mu.Lock()
		c.snapshot = loaded
		c.guardEnabled = true
		c.mu.Unlock()
		snapshot = loaded
	}

	// Already on the call screen: nothing to do
	if c.navigator.CurrentScreen() == snapshot.CurrentScreen {
		metrics.NavigationRestoreTotal.WithLabelValues("already_there").Inc()
		return domain.RestoreResult{Success: true, RestoredToCallScreen: true, Reason: "already on call screen"}
	}

	// Expiry clock: measured from the background transition when one was
	// recorded, else from call start
	elapsed := time.Since(snapshot.ExpiryBase())
	if elapsed > c.cfg.MaxBackgroundDuration {
		logger.Info("Call snapshot expired, treating call as abandoned",
			zap.String("call_id", snapshot.CallID.String()),
			zap.Duration("elapsed", elapsed),
			zap.Duration("max_background_duration", c.cfg.MaxBackgroundDuration))
		if err := c.EndSession(ctx); err != nil {
			logger.Warn("Failed to clear expired navigation session", zap.Error(err))
		}
		metrics.NavigationRestoreTotal.WithLabelValues("expired").Inc()
		return domain.RestoreResult{
			Success: false,
			Reason:  fmt.Sprintf("call abandoned after %s in background", elapsed.Round(time.Second)),
		}
	}

	if err := c.navigate(ctx, snapshot); err != nil {
		// Navigator not ready yet; the snapshot survives so the next
		// foreground transition retries
		logger.Warn("Restore navigation failed",
			zap.String("call_id", snapshot.CallID.String()),
			zap.Error(err))
		metrics.NavigationRestoreTotal.WithLabelValues("error").Inc()
		return domain.RestoreResult{Success: false, Reason: "navigator transition failed"}
	}

	metrics.NavigationRestoreTotal.WithLabelValues("restored").Inc()
	logger.Info("Restored to call screen",
		zap.String("call_id", snapshot.CallID.String()),
		zap.String("screen", snapshot.CurrentScreen))
	return domain.RestoreResult{Success: true, RestoredToCallScreen: true}
}

// HandleExternalNavigation intercepts a navigation away from the call screen
// while the guard is active, reversing it by re-issuing the restore
// transition. Returns true when the navigation was intercepted.
func (c *Coordinator) HandleExternalNavigation(ctx context.Context, targetScreenID string) bool {
	c.mu.Lock()
	snapshot := c.snapshot
	guarded := c.guardEnabled
	c.mu.Unlock()

	if !guarded || snapshot == nil || targetScreenID == snapshot.CurrentScreen {
		return false
	}

	metrics.NavigationGuardReversalTotal.Inc()
	logger.Warn("Navigation away from call screen blocked",
		zap.String("call_id", snapshot.CallID.String()),
		zap.String("attempted_screen", targetScreenID),
		zap.String("call_screen", snapshot.CurrentScreen))

	if err := c.navigate(ctx, snapshot); err != nil {
		logger.Error("Failed to reverse navigation", zap.Error(err))
	}
	return true
}

// HasActiveSession reports whether a call snapshot is currently held
func (c *Coordinator) HasActiveSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot != nil
}

// Snapshot returns a copy of the current snapshot, nil when none
func (c *Coordinator) Snapshot() *domain.NavigationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	snapshot := *c.snapshot
	return &snapshot
}

// navigate issues the restore transition with the restoreCall marker
func (c *Coordinator) navigate(ctx context.Context, snapshot *domain.NavigationSnapshot) error {
	params := make(map[string]string, len(snapshot.ScreenParams)+1)
	for k, v := range snapshot.ScreenParams {
		params[k] = v
	}
	params[RestoreCallParam] = "true"
	return c.navigator.Navigate(ctx, snapshot.CurrentScreen, params)
}

// persist writes the latest in-memory snapshot to the store. The persisted
// copy is always a serialization of the latest in-memory value.
func (c *Coordinator) persist(ctx context.Context) error {
	c.mu.Lock()
	if c.snapshot == nil {
		c.mu.Unlock()
		return nil
	}
	c.snapshot.PersistedAt = time.Now().UnixMilli()
	snapshot := *c.snapshot
	c.mu.Unlock()

	data, err := json.Marshal(&snapshot)
	if err != nil {
		metrics.NavigationSnapshotPersistedTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to marshal navigation snapshot: %w", err)
	}

	// The load path applies its own expiry clock; the store TTL only bounds
	// how long a dead record can linger
	if err := c.store.Set(ctx, snapshotStorageKey, data, 2*c.cfg.MaxBackgroundDuration); err != nil {
		metrics.NavigationSnapshotPersistedTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to persist navigation snapshot: %w", err)
	}

	metrics.NavigationSnapshotPersistedTotal.WithLabelValues("success").Inc()
	return nil
}

// loadPersisted reads the persisted snapshot, discarding it when stale
func (c *Coordinator) loadPersisted(ctx context.Context) (snapshot *domain.NavigationSnapshot, expired bool, err error) {
	data, found, err := c.store.Get(ctx, snapshotStorageKey)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	var loaded domain.NavigationSnapshot
	if err := json.Unmarshal(data, &loaded); err != nil {
		// A corrupt record cannot restore anything; drop it
		logger.Warn("Discarding corrupt navigation snapshot", zap.Error(err))
		_ = c.store.Delete(ctx, snapshotStorageKey)
		return nil, false, nil
	}

	// Record-level expiry from persist time, independent of the restore clock
	if time.Since(time.UnixMilli(loaded.PersistedAt)) > c.cfg.MaxBackgroundDuration {
		logger.Info("Discarding expired navigation snapshot",
			zap.String("call_id", loaded.CallID.String()))
		_ = c.store.Delete(ctx, snapshotStorageKey)
		return nil, true, nil
	}

	return &loaded, false, nil
}
