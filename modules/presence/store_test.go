package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

func TestOnlineCountExcludesInvisible(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SetOnline(ctx, "1001"))
	require.NoError(t, store.SetOnline(ctx, "1002"))
	require.NoError(t, store.SetOnline(ctx, "1003"))
	require.NoError(t, store.SetInvisible(ctx, "1003"))

	count, err := store.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// invisible users stay reachable for broadcasts
	for _, userID := range []string{"1001", "1002", "1003"} {
		ok, err := store.InMulticast(ctx, userID)
		require.NoError(t, err)
		assert.True(t, ok, "user %s should be in multicast", userID)
	}

	multicast, err := store.MulticastCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), multicast)
}

func TestStatusTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	status, err := store.Status(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusUnavailable, status, "unknown user is unavailable")

	require.NoError(t, store.SetOnline(ctx, "42"))
	status, err = store.Status(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusAvailable, status)

	require.NoError(t, store.SetInvisible(ctx, "42"))
	status, err = store.Status(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusInvisible, status)

	require.NoError(t, store.SetOffline(ctx, "42"))
	status, err = store.Status(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusUnavailable, status)

	ok, err := store.InMulticast(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOfflineAfterOnlineLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SetOnline(ctx, "7"))
	require.NoError(t, store.SetOffline(ctx, "7"))

	count, err := store.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	multicast, err := store.MulticastCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, multicast)
}

func TestSetOnlineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SetOnline(ctx, "9"))
	require.NoError(t, store.SetOnline(ctx, "9"))

	count, err := store.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNonNumericIDsAreTracked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// uuid-style ids skip the bitmap but keep full set semantics
	require.NoError(t, store.SetOnline(ctx, "b17f5b28-bd9c-4adf-9e31-5f0a5c8a9c44"))

	ok, err := store.InMulticast(ctx, "b17f5b28-bd9c-4adf-9e31-5f0a5c8a9c44")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := store.Status(ctx, "b17f5b28-bd9c-4adf-9e31-5f0a5c8a9c44")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusAvailable, status)
}
