package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

func message(id, from, target, body string, ts int64, published string) chat.Message {
	return chat.Message{
		ID:           id,
		FromUserID:   from,
		FromUserName: "user-" + from,
		TargetID:     target,
		TargetName:   "room-" + target,
		Body:         body,
		Domain:       chat.DomainRoom,
		Published:    published,
		Timestamp:    ts,
	}
}

func TestStoreAndGetMessage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	msg := message("m1", "u1", "r1", "hi", 100, "2026-08-28T10:00:00Z")
	require.NoError(t, store.StoreMessage(ctx, msg))

	got, err := store.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	rows, err := store.Messages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, msg.TargetID, rows[0].TargetID)
	assert.Equal(t, msg.FromUserID, rows[0].FromUserID)
	assert.Equal(t, msg.Published, rows[0].Published)
	assert.Equal(t, msg.Timestamp, rows[0].Timestamp)

	_, err = store.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoSuchMessage)
}

func TestHistoryLatestSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.StoreMessage(ctx, message("m1", "u1", "r1", "one", 100, "2026-08-28T10:00:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m2", "u1", "r1", "two", 200, "2026-08-28T10:01:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m3", "u1", "r1", "three", 300, "2026-08-28T10:02:00Z")))

	require.NoError(t, store.DeleteMessage(ctx, "m2", false))

	rows, err := store.HistoryLatest(ctx, "r1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "m3", rows[0].ID, "newest first")
	assert.Equal(t, "m1", rows[1].ID)

	got, err := store.GetMessage(ctx, "m2")
	require.NoError(t, err)
	assert.True(t, got.Deleted, "deleted rows stay reachable by id")
	assert.Equal(t, "two", got.Body)
}

func TestHistoryLatestEmptyRoom(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rows, err := store.HistoryLatest(ctx, "empty", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHistoryLatestLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.StoreMessage(ctx, message("m1", "u1", "r1", "one", 100, "2026-08-28T10:00:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m2", "u1", "r1", "two", 200, "2026-08-28T10:01:00Z")))

	rows, err := store.HistoryLatest(ctx, "r1", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m2", rows[0].ID)
}

func TestDeleteUndeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.StoreMessage(ctx, message("m1", "u1", "r1", "secret", 100, "2026-08-28T10:00:00Z")))

	require.NoError(t, store.DeleteMessage(ctx, "m1", true))
	rows, err := store.HistoryLatest(ctx, "r1", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, store.UndeleteMessage(ctx, "m1"))
	rows, err = store.HistoryLatest(ctx, "r1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m1", rows[0].ID)
	assert.Empty(t, rows[0].Body, "a cleared body stays cleared")
}

func TestHistoryTimeWindows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.StoreMessage(ctx, message("m1", "u1", "r1", "one", 100, "2026-08-28T10:00:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m2", "u2", "r1", "two", 200, "2026-08-28T10:01:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m3", "u1", "r1", "three", 300, "2026-08-28T10:02:00Z")))

	rows, err := store.HistorySince(ctx, "r1", 200)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "m3", rows[0].ID)
	assert.Equal(t, "m2", rows[1].ID)

	rows, err = store.HistoryBetween(ctx, "r1", 100, 200)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "m2", rows[0].ID)
	assert.Equal(t, "m1", rows[1].ID)
}

func TestMessagesBySender(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.StoreMessage(ctx, message("m1", "u1", "r1", "one", 100, "2026-08-28T10:00:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m2", "u2", "r1", "two", 200, "2026-08-28T10:01:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m3", "u1", "r2", "three", 300, "2026-08-28T10:02:00Z")))

	rows, err := store.MessagesBySender(ctx, "u1", "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = store.MessagesBySender(ctx, "u1", "r2", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m3", rows[0].ID)

	rows, err = store.MessagesBySender(ctx, "u1", "", 0, 150)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m1", rows[0].ID)
}

// The time window binds even without a target scope; a non-zero bound is
// never silently dropped.
func TestMessagesBySenderWindowWithoutTarget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.StoreMessage(ctx, message("m1", "u1", "r1", "one", 50, "2026-08-28T10:00:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m2", "u1", "r2", "two", 150, "2026-08-28T10:01:00Z")))
	require.NoError(t, store.StoreMessage(ctx, message("m3", "u1", "r1", "three", 500, "2026-08-28T10:02:00Z")))

	rows, err := store.MessagesBySender(ctx, "u1", "", 100, 200)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m2", rows[0].ID)

	rows, err = store.MessagesBySender(ctx, "u1", "", 100, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "open upper bound keeps everything at or after from")

	rows, err = store.MessagesBySender(ctx, "u1", "", 0, 200)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "open lower bound keeps everything at or before to")
}

func TestAckStatusMonotonicity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.AddAcks(ctx, "r1", "u2", []string{"m1", "m2"}, chat.AckStatusDelivered))
	require.NoError(t, store.UpdateAcks(ctx, "u2", []string{"m1"}, chat.AckStatusRead))

	acks, err := store.AcksFor(ctx, "u2", []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"m1": chat.AckStatusRead,
		"m2": chat.AckStatusDelivered,
	}, acks)

	read, err := store.AcksForStatus(ctx, "u2", chat.AckStatusRead)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, read)

	// lowering a status is ignored
	require.NoError(t, store.UpdateAcks(ctx, "u2", []string{"m1"}, chat.AckStatusUnsent))
	acks, err = store.AcksFor(ctx, "u2", []string{"m1"})
	require.NoError(t, err)
	assert.Equal(t, chat.AckStatusRead, acks["m1"])
}
