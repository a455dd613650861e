package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenetcircle/dino-sub002/domain/chat"
	"github.com/thenetcircle/dino-sub002/events"
	"github.com/thenetcircle/dino-sub002/modules/auth"
	"github.com/thenetcircle/dino-sub002/modules/history"
	"github.com/thenetcircle/dino-sub002/modules/presence"
	"github.com/thenetcircle/dino-sub002/modules/registry"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// recordingEmitter captures outbound events instead of publishing them.
type recordingEmitter struct {
	messages    []events.MessageSentEvent
	joins       []events.UserJoinedEvent
	leaves      []events.UserLeftEvent
	roomCreates []events.RoomCreatedEvent
	statuses    []events.UserStatusEvent
}

func (e *recordingEmitter) MessageSent(_ context.Context, ev events.MessageSentEvent) {
	e.messages = append(e.messages, ev)
}

func (e *recordingEmitter) UserJoined(_ context.Context, ev events.UserJoinedEvent) {
	e.joins = append(e.joins, ev)
}

func (e *recordingEmitter) UserLeft(_ context.Context, ev events.UserLeftEvent) {
	e.leaves = append(e.leaves, ev)
}

func (e *recordingEmitter) RoomCreated(_ context.Context, ev events.RoomCreatedEvent) {
	e.roomCreates = append(e.roomCreates, ev)
}

func (e *recordingEmitter) UserStatus(_ context.Context, ev events.UserStatusEvent) {
	e.statuses = append(e.statuses, ev)
}

type fixture struct {
	pipeline *Pipeline
	emitter  *recordingEmitter
	auth     *auth.MemoryAuthenticator
	presence *presence.MemoryStore
	registry *registry.MemoryRegistry
	history  *history.MemoryStore
}

func newFixture() *fixture {
	f := &fixture{
		emitter:  &recordingEmitter{},
		auth:     auth.NewMemoryAuthenticator(true),
		presence: presence.NewMemoryStore(),
		registry: registry.NewMemoryRegistry(),
		history:  history.NewMemoryStore(),
	}
	f.pipeline = New(f.auth, f.presence, f.registry, f.history, f.emitter, &mockLogger{}, -1)
	return f
}

func (f *fixture) connect(t *testing.T, userID string) {
	t.Helper()
	resp := f.pipeline.Handle(context.Background(), Event{
		Verb: VerbConnect,
		Actor: Actor{
			ID:          userID,
			Attachments: []Attachment{{ObjectType: "token", Content: "token-" + userID}},
		},
	})
	require.Equal(t, 200, resp.Status, "connect failed: %s", resp.Reason)
}

func (f *fixture) createRoom(t *testing.T, userID, name string) string {
	t.Helper()
	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbCreate,
		Actor:  Actor{ID: userID},
		Target: Target{DisplayName: name},
	})
	require.Equal(t, 200, resp.Status, "create failed: %s", resp.Reason)
	return resp.Data.(map[string]string)["room_id"]
}

func (f *fixture) join(userID, roomID string) Response {
	return f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbJoin,
		Actor:  Actor{ID: userID},
		Target: Target{ID: roomID},
	})
}

func (f *fixture) send(userID, roomID, body string) Response {
	return f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbMessage,
		Actor:  Actor{ID: userID},
		Object: Object{Content: encodeContent(body)},
		Target: Target{ID: roomID, ObjectType: "room"},
	})
}

func TestCreateJoinMessageHistory(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")

	roomID := f.createRoom(t, "u1", "lobby")

	resp := f.join("u1", roomID)
	require.Equal(t, 200, resp.Status, resp.Reason)

	resp = f.send("u1", roomID, "hi")
	require.Equal(t, 200, resp.Status, resp.Reason)

	resp = f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbHistory,
		Actor:  Actor{ID: "u1"},
		Target: Target{ID: roomID},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	page := resp.Data.([]chat.Message)
	require.Len(t, page, 1)
	assert.Equal(t, "hi", page[0].Body)
	assert.Equal(t, "u1", page[0].FromUserID)
}

func TestJoinDeniedByAcl(t *testing.T) {
	f := newFixture()
	f.auth.AddUser("u1", map[string]string{"user_name": "alice", "gender": "f", "token": "token-u1"})
	f.auth.AddUser("u2", map[string]string{"user_name": "bob", "gender": "m", "token": "token-u2"})
	f.connect(t, "u1")
	f.connect(t, "u2")

	roomID := f.createRoom(t, "u1", "girls only")
	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbSetAcl,
		Actor:  Actor{ID: "u1"},
		Object: Object{Attachments: []Attachment{{ObjectType: "gender", Content: "f"}}},
		Target: Target{ID: roomID},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	resp = f.join("u2", roomID)
	assert.Equal(t, 403, resp.Status)

	members, err := f.registry.UsersInRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Empty(t, members, "a denied join must not alter membership")

	resp = f.join("u1", roomID)
	assert.Equal(t, 200, resp.Status, "owner with matching session joins fine")
}

func TestDisconnectCleanup(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")
	f.connect(t, "u2")

	r1 := f.createRoom(t, "u1", "room one")
	r2 := f.createRoom(t, "u1", "room two")
	require.Equal(t, 200, f.join("u2", r1).Status)
	require.Equal(t, 200, f.join("u1", r1).Status)
	require.Equal(t, 200, f.join("u1", r2).Status)

	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:  VerbDisconnect,
		Actor: Actor{ID: "u1"},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	rooms, err := f.registry.RoomsForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	for _, roomID := range []string{r1, r2} {
		in, err := f.registry.RoomContains(context.Background(), roomID, "u1")
		require.NoError(t, err)
		assert.False(t, in)
	}

	status, err := f.presence.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusUnavailable, status)

	// one user_left broadcast per joined room, to the remaining members
	require.Len(t, f.emitter.leaves, 2)
	byRoom := map[string][]string{}
	for _, leave := range f.emitter.leaves {
		assert.Equal(t, "u1", leave.UserID)
		byRoom[leave.RoomID] = leave.Recipients
	}
	assert.Equal(t, []string{"u2"}, byRoom[r1])
	assert.Empty(t, byRoom[r2])

	_, ok := f.pipeline.Session("u1")
	assert.False(t, ok, "session is destroyed on disconnect")
}

func TestMessageRequiresMembership(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")
	f.connect(t, "u2")

	roomID := f.createRoom(t, "u1", "lobby")
	require.Equal(t, 200, f.join("u1", roomID).Status)

	resp := f.send("u2", roomID, "hi")
	assert.Equal(t, 400, resp.Status)
	assert.Empty(t, f.emitter.messages, "nothing is broadcast for a rejected message")
}

func TestMessageFanout(t *testing.T) {
	f := newFixture()
	for _, userID := range []string{"u1", "u2", "u3"} {
		f.connect(t, userID)
	}

	roomID := f.createRoom(t, "u1", "lobby")
	for _, userID := range []string{"u1", "u2", "u3"} {
		require.Equal(t, 200, f.join(userID, roomID).Status)
	}

	// u3 goes offline but keeps membership
	require.NoError(t, f.presence.SetOffline(context.Background(), "u3"))

	resp := f.send("u1", roomID, "hello")
	require.Equal(t, 200, resp.Status, resp.Reason)

	require.Len(t, f.emitter.messages, 1)
	sent := f.emitter.messages[0]
	assert.Equal(t, roomID, sent.RoomID)
	assert.ElementsMatch(t, []string{"u1", "u2"}, sent.Recipients,
		"sender included, unavailable member excluded")

	messageID := resp.Data.(map[string]string)["message_id"]
	acks, err := f.history.AcksFor(context.Background(), "u2", []string{messageID})
	require.NoError(t, err)
	assert.Equal(t, chat.AckStatusUnsent, acks[messageID], "acks are seeded for recipients")

	acks, err = f.history.AcksFor(context.Background(), "u1", []string{messageID})
	require.NoError(t, err)
	assert.Empty(t, acks, "no ack row for the sender")
}

func TestPrivateMessage(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")
	f.connect(t, "u2")

	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbMessage,
		Actor:  Actor{ID: "u1"},
		Object: Object{Content: encodeContent("psst")},
		Target: Target{ID: "u2", ObjectType: "private"},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	require.Len(t, f.emitter.messages, 1)
	sent := f.emitter.messages[0]
	assert.ElementsMatch(t, []string{"u1", "u2"}, sent.Recipients,
		"a private message goes to exactly the target and the sender")

	messageID := resp.Data.(map[string]string)["message_id"]
	msg, err := f.history.GetMessage(context.Background(), messageID)
	require.NoError(t, err)
	assert.Equal(t, chat.DomainPrivate, msg.Domain)
	assert.Equal(t, "u2", msg.TargetID)
	assert.Equal(t, "psst", msg.Body)

	acks, err := f.history.AcksFor(context.Background(), "u2", []string{messageID})
	require.NoError(t, err)
	assert.Equal(t, chat.AckStatusUnsent, acks[messageID], "ack seeded for the target")

	acks, err = f.history.AcksFor(context.Background(), "u1", []string{messageID})
	require.NoError(t, err)
	assert.Empty(t, acks, "no ack row for the sender")
}

func TestPrivateMessageToOfflineTarget(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")

	// u3 never connected; the message is still stored and its ack seeded,
	// so it is waiting when u3 comes back
	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbMessage,
		Actor:  Actor{ID: "u1"},
		Object: Object{Content: encodeContent("anyone home")},
		Target: Target{ID: "u3", ObjectType: "private"},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	require.Len(t, f.emitter.messages, 1)
	assert.ElementsMatch(t, []string{"u1", "u3"}, f.emitter.messages[0].Recipients)

	messageID := resp.Data.(map[string]string)["message_id"]
	acks, err := f.history.AcksFor(context.Background(), "u3", []string{messageID})
	require.NoError(t, err)
	assert.Equal(t, chat.AckStatusUnsent, acks[messageID])
}

func TestMessageRejectsBadBase64(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")
	roomID := f.createRoom(t, "u1", "lobby")
	require.Equal(t, 200, f.join("u1", roomID).Status)

	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbMessage,
		Actor:  Actor{ID: "u1"},
		Object: Object{Content: "not base64!!"},
		Target: Target{ID: roomID, ObjectType: "room"},
	})
	assert.Equal(t, 400, resp.Status)
}

func TestAckVerbsAdvanceStatus(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")
	f.connect(t, "u2")

	roomID := f.createRoom(t, "u1", "lobby")
	require.Equal(t, 200, f.join("u1", roomID).Status)
	require.Equal(t, 200, f.join("u2", roomID).Status)

	resp := f.send("u1", roomID, "hello")
	require.Equal(t, 200, resp.Status)
	messageID := resp.Data.(map[string]string)["message_id"]

	resp = f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbReceived,
		Actor:  Actor{ID: "u2"},
		Object: Object{Attachments: []Attachment{{ObjectType: "message_id", Content: messageID}}},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	acks, err := f.history.AcksFor(context.Background(), "u2", []string{messageID})
	require.NoError(t, err)
	assert.Equal(t, chat.AckStatusDelivered, acks[messageID])

	resp = f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbRead,
		Actor:  Actor{ID: "u2"},
		Object: Object{Attachments: []Attachment{{ObjectType: "message_id", Content: messageID}}},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	acks, err = f.history.AcksFor(context.Background(), "u2", []string{messageID})
	require.NoError(t, err)
	assert.Equal(t, chat.AckStatusRead, acks[messageID])
}

func TestSetAclRequiresOwnership(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")
	f.connect(t, "u2")

	roomID := f.createRoom(t, "u1", "lobby")
	require.Equal(t, 200, f.join("u2", roomID).Status)

	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbSetAcl,
		Actor:  Actor{ID: "u2"},
		Object: Object{Attachments: []Attachment{{ObjectType: "gender", Content: "m"}}},
		Target: Target{ID: roomID},
	})
	assert.Equal(t, 403, resp.Status)

	resp = f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbSetAcl,
		Actor:  Actor{ID: "u1"},
		Object: Object{Attachments: []Attachment{{ObjectType: "age", Content: "18:"}}},
		Target: Target{ID: roomID},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	resp = f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbGetAcl,
		Actor:  Actor{ID: "u2"},
		Target: Target{ID: roomID},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)
	assert.Equal(t, map[string]string{"age": "18:"}, resp.Data)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")
	f.createRoom(t, "u1", "lobby")

	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbCreate,
		Actor:  Actor{ID: "u1"},
		Target: Target{DisplayName: "Lobby"},
	})
	assert.Equal(t, 409, resp.Status)
}

func TestVerbsRequireLogin(t *testing.T) {
	f := newFixture()

	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:  VerbListRooms,
		Actor: Actor{ID: "stranger"},
	})
	assert.Equal(t, 401, resp.Status)
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")

	resp := f.join("u1", "no-such-room")
	assert.Equal(t, 404, resp.Status)
}

func TestDeleteVerbSoftDeletes(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")
	f.connect(t, "u2")

	roomID := f.createRoom(t, "u1", "lobby")
	require.Equal(t, 200, f.join("u1", roomID).Status)
	require.Equal(t, 200, f.join("u2", roomID).Status)

	resp := f.send("u2", roomID, "spam")
	require.Equal(t, 200, resp.Status)
	messageID := resp.Data.(map[string]string)["message_id"]

	resp = f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbDelete,
		Actor:  Actor{ID: "u2"},
		Object: Object{ID: messageID},
		Target: Target{ID: roomID},
	})
	assert.Equal(t, 403, resp.Status, "only owners delete")

	resp = f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbDelete,
		Actor:  Actor{ID: "u1"},
		Object: Object{ID: messageID},
		Target: Target{ID: roomID},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	msg, err := f.history.GetMessage(context.Background(), messageID)
	require.NoError(t, err)
	assert.True(t, msg.Deleted)

	page, err := f.history.HistoryLatest(context.Background(), roomID, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

// wrappingRegistry annotates every error it returns, the way a remote-backed
// implementation would.
type wrappingRegistry struct {
	registry.Registry
}

func (w *wrappingRegistry) UsersInRoom(ctx context.Context, roomID string) ([]chat.Member, error) {
	members, err := w.Registry.UsersInRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of room %s: %w", roomID, err)
	}
	return members, nil
}

func TestUnknownRoomDetectedThroughWrappedError(t *testing.T) {
	f := newFixture()
	f.pipeline = New(f.auth, f.presence, &wrappingRegistry{f.registry}, f.history, f.emitter, &mockLogger{}, -1)
	f.connect(t, "u1")

	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbUsersInRoom,
		Actor:  Actor{ID: "u1"},
		Target: Target{ID: "no-such-room"},
	})
	assert.Equal(t, 404, resp.Status, "a wrapped not-found still maps to 404")
}

func TestStatusVerb(t *testing.T) {
	f := newFixture()
	f.connect(t, "u1")

	resp := f.pipeline.Handle(context.Background(), Event{
		Verb:   VerbStatus,
		Actor:  Actor{ID: "u1"},
		Object: Object{Content: encodeContent("invisible")},
	})
	require.Equal(t, 200, resp.Status, resp.Reason)

	status, err := f.presence.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusInvisible, status)

	in, err := f.presence.InMulticast(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, in, "invisible users still receive broadcasts")
}
