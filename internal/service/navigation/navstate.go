package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"callsync-core/internal/domain"
	"callsync-core/pkg/logger"
)

// Storage keys for the general screen-navigation state. This is a related
// but distinct persistence concern from the call snapshot: its own key, its
// own expiry clock.
const (
	navStateStorageKey  = "nav:screen_state"
	cleanExitStorageKey = "nav:clean_exit"
)

// StateKeeperConfig controls expiry of persisted screen-navigation state
type StateKeeperConfig struct {
	// DefaultTTL applies to ordinary screens
	DefaultTTL time.Duration
	// AuthRouteTTL applies to screens classified as auth-flow screens
	AuthRouteTTL time.Duration
}

// DefaultStateKeeperConfig returns the production defaults
func DefaultStateKeeperConfig() StateKeeperConfig {
	return StateKeeperConfig{
		DefaultTTL:   24 * time.Hour,
		AuthRouteTTL: 5 * time.Minute,
	}
}

// StateKeeper persists the general screen-stack state across cold starts.
// Auth-flow screens expire fast and never survive an abnormal termination.
type StateKeeper struct {
	cfg   StateKeeperConfig
	store Store
}

// NewStateKeeper creates a StateKeeper
func NewStateKeeper(cfg StateKeeperConfig, store Store) *StateKeeper {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultStateKeeperConfig().DefaultTTL
	}
	if cfg.AuthRouteTTL <= 0 {
		cfg.AuthRouteTTL = DefaultStateKeeperConfig().AuthRouteTTL
	}
	return &StateKeeper{cfg: cfg, store: store}
}

// Save persists the serialized screen stack
func (k *StateKeeper) Save(ctx context.Context, state string, isAuthRoute bool) error {
	record := domain.NavStateRecord{
		State:       state,
		SavedAt:     time.Now().UnixMilli(),
		Version:     domain.NavStateVersion,
		IsAuthRoute: isAuthRoute,
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal navigation state: %w", err)
	}

	if err := k.store.Set(ctx, navStateStorageKey, data, k.cfg.DefaultTTL); err != nil {
		return fmt.Errorf("failed to persist navigation state: %w", err)
	}
	return nil
}

// Load returns the persisted screen stack if it is still valid under the
// cold-start expiry rules. Stale or disqualified records are discarded and
// reported as absent.
func (k *StateKeeper) Load(ctx context.Context) (string, bool, error) {
	data, found, err := k.store.Get(ctx, navStateStorageKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to load navigation state: %w", err)
	}
	if !found {
		return "", false, nil
	}

	var record domain.NavStateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		logger.Warn("Discarding corrupt navigation state record", zap.Error(err))
		_ = k.store.Delete(ctx, navStateStorageKey)
		return "", false, nil
	}

	if record.Version != domain.NavStateVersion {
		logger.Info("Discarding navigation state with unknown version",
			zap.String("version", record.Version))
		_ = k.store.Delete(ctx, navStateStorageKey)
		return "", false, nil
	}

	// An auth route never survives an abnormal termination
	if record.IsAuthRoute {
		clean, err := k.wasCleanExit(ctx)
		if err != nil {
			return "", false, err
		}
		if !clean {
			logger.Info("Discarding auth-route navigation state after abnormal termination")
			_ = k.store.Delete(ctx, navStateStorageKey)
			return "", false, nil
		}
	}

	ttl := k.cfg.DefaultTTL
	if record.IsAuthRoute {
		ttl = k.cfg.AuthRouteTTL
	}
	if time.Since(time.UnixMilli(record.SavedAt)) > ttl {
		logger.Info("Discarding expired navigation state",
			zap.Bool("is_auth_route", record.IsAuthRoute))
		_ = k.store.Delete(ctx, navStateStorageKey)
		return "", false, nil
	}

	return record.State, true, nil
}

// BeginRun removes the clean-exit marker so a crash before MarkCleanExit is
// detectable on the next start. Call once at process start, after Load.
func (k *StateKeeper) BeginRun(ctx context.Context) error {
	return k.store.Delete(ctx, cleanExitStorageKey)
}

// MarkCleanExit records that this process run is terminating gracefully.
// Call during shutdown.
func (k *StateKeeper) MarkCleanExit(ctx context.Context) error {
	return k.store.Set(ctx, cleanExitStorageKey, []byte("1"), 0)
}

// wasCleanExit reports whether the previous process run wrote the marker
func (k *StateKeeper) wasCleanExit(ctx context.Context) (bool, error) {
	_, found, err := k.store.Get(ctx, cleanExitStorageKey)
	if err != nil {
		return false, err
	}
	return found, nil
}
