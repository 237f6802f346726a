package navigation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsync-core/internal/domain"
	"callsync-core/internal/repository/memory"
)

func saveRecord(t *testing.T, store Store, record domain.NavStateRecord) {
	t.Helper()
	data, err := json.Marshal(&record)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), navStateStorageKey, data, 0))
}

// TestSaveLoadRoundTrip tests the ordinary-screen persistence path
func TestSaveLoadRoundTrip(t *testing.T) {
	store := memory.NewStore()
	keeper := NewStateKeeper(DefaultStateKeeperConfig(), store)

	require.NoError(t, keeper.MarkCleanExit(context.Background()))
	require.NoError(t, keeper.Save(context.Background(), `["home","profile"]`, false))

	state, found, err := keeper.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `["home","profile"]`, state)
}

// TestLoadExpiredOrdinaryState tests the 24-hour ceiling for ordinary screens
func TestLoadExpiredOrdinaryState(t *testing.T) {
	store := memory.NewStore()
	keeper := NewStateKeeper(DefaultStateKeeperConfig(), store)

	saveRecord(t, store, domain.NavStateRecord{
		State:   `["home"]`,
		SavedAt: time.Now().Add(-25 * time.Hour).UnixMilli(),
		Version: domain.NavStateVersion,
	})

	_, found, err := keeper.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, store.Len())
}

// TestLoadAuthRouteShortTTL tests that auth-flow screens expire after the
// short window even though ordinary screens would still be valid
func TestLoadAuthRouteShortTTL(t *testing.T) {
	store := memory.NewStore()
	keeper := NewStateKeeper(DefaultStateKeeperConfig(), store)

	require.NoError(t, keeper.MarkCleanExit(context.Background()))
	saveRecord(t, store, domain.NavStateRecord{
		State:       `["login","otp"]`,
		SavedAt:     time.Now().Add(-10 * time.Minute).UnixMilli(),
		Version:     domain.NavStateVersion,
		IsAuthRoute: true,
	})

	_, found, err := keeper.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

// TestLoadAuthRouteWithinTTL tests the auth-flow happy path after a graceful
// shutdown
func TestLoadAuthRouteWithinTTL(t *testing.T) {
	store := memory.NewStore()
	keeper := NewStateKeeper(DefaultStateKeeperConfig(), store)

	require.NoError(t, keeper.MarkCleanExit(context.Background()))
	require.NoError(t, keeper.Save(context.Background(), `["login"]`, true))

	state, found, err := keeper.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `["login"]`, state)
}

// TestLoadAuthRouteAfterAbnormalTermination tests that auth-flow state is
// discarded unconditionally when the previous run never marked a clean exit
func TestLoadAuthRouteAfterAbnormalTermination(t *testing.T) {
	store := memory.NewStore()
	keeper := NewStateKeeper(DefaultStateKeeperConfig(), store)

	// No MarkCleanExit: the previous run crashed on the auth screen
	require.NoError(t, keeper.Save(context.Background(), `["login"]`, true))

	_, found, err := keeper.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)

	// The record was removed, not just hidden
	_, present, err := store.Get(context.Background(), navStateStorageKey)
	require.NoError(t, err)
	assert.False(t, present)
}

// TestOrdinaryStateSurvivesAbnormalTermination tests that only auth routes
// are sensitive to the clean-exit marker
func TestOrdinaryStateSurvivesAbnormalTermination(t *testing.T) {
	store := memory.NewStore()
	keeper := NewStateKeeper(DefaultStateKeeperConfig(), store)

	require.NoError(t, keeper.Save(context.Background(), `["home"]`, false))

	state, found, err := keeper.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `["home"]`, state)
}

// TestLoadUnknownVersion tests the version gate
func TestLoadUnknownVersion(t *testing.T) {
	store := memory.NewStore()
	keeper := NewStateKeeper(DefaultStateKeeperConfig(), store)

	saveRecord(t, store, domain.NavStateRecord{
		State:   `["home"]`,
		SavedAt: time.Now().UnixMilli(),
		Version: "0.9",
	})

	_, found, err := keeper.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

// TestBeginRunClearsCleanExitMarker tests the crash-detection sequencing:
// Load sees the previous run's marker, BeginRun clears it for this run
func TestBeginRunClearsCleanExitMarker(t *testing.T) {
	store := memory.NewStore()
	keeper := NewStateKeeper(DefaultStateKeeperConfig(), store)

	require.NoError(t, keeper.MarkCleanExit(context.Background()))
	require.NoError(t, keeper.BeginRun(context.Background()))

	// A crash here means the next run sees no marker
	require.NoError(t, keeper.Save(context.Background(), `["login"]`, true))
	_, found, err := keeper.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}
