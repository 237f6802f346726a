package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetGetDelete tests the basic key lifecycle
func TestSetGetDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, store.Delete(ctx, "k"))
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is a no-op
	require.NoError(t, store.Delete(ctx, "k"))
}

// TestTTLExpiry tests that expired entries read as absent
func TestTTLExpiry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	require.NoError(t, store.Set(ctx, "forever", []byte("v"), 0))

	time.Sleep(20 * time.Millisecond)

	_, found, err := store.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, found)
}

// TestValueIsolation tests that callers cannot mutate stored bytes
func TestValueIsolation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	original := []byte("payload")
	require.NoError(t, store.Set(ctx, "k", original, 0))
	original[0] = 'X'

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("payload"), value)

	value[0] = 'Y'
	again, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), again)
}

// TestOverwrite tests replacing an existing key
func TestOverwrite(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("one"), 0))
	require.NoError(t, store.Set(ctx, "k", []byte("two"), 0))

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("two"), value)
	assert.Equal(t, 1, store.Len())
}
