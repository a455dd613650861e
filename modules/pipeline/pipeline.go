// Package pipeline drives each inbound event through authentication,
// validation, persistence and fan-out.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"

	"github.com/thenetcircle/dino-sub002/domain/chat"
	"github.com/thenetcircle/dino-sub002/events"
	"github.com/thenetcircle/dino-sub002/modules/auth"
	"github.com/thenetcircle/dino-sub002/modules/history"
	"github.com/thenetcircle/dino-sub002/modules/presence"
	"github.com/thenetcircle/dino-sub002/modules/registry"
)

// Accepted event verbs.
const (
	VerbConnect     = "connect"
	VerbDisconnect  = "disconnect"
	VerbJoin        = "join"
	VerbLeave       = "leave"
	VerbCreate      = "create"
	VerbMessage     = "message"
	VerbHistory     = "history"
	VerbListRooms   = "list_rooms"
	VerbGetAcl      = "get_acl"
	VerbSetAcl      = "set_acl"
	VerbStatus      = "status"
	VerbUsersInRoom = "users_in_room"
	VerbReceived    = "received"
	VerbRead        = "read"
	VerbDelete      = "delete"
)

const defaultHistoryLimit = 100

// Emitter publishes outbound events for the broadcast layer. A failed emit
// after a committed write is eventual consistency, not an event failure.
type Emitter interface {
	MessageSent(ctx context.Context, event events.MessageSentEvent)
	UserJoined(ctx context.Context, event events.UserJoinedEvent)
	UserLeft(ctx context.Context, event events.UserLeftEvent)
	RoomCreated(ctx context.Context, event events.RoomCreatedEvent)
	UserStatus(ctx context.Context, event events.UserStatusEvent)
}

// Pipeline orchestrates the verb handlers over the four stores. Sessions are
// created on connect and dropped on disconnect; every other verb requires
// one.
type Pipeline struct {
	auth       auth.Authenticator
	presence   presence.Store
	registry   registry.Registry
	history    history.Store
	emitter    Emitter
	logger     types.Logger
	maxHistory int

	mu       sync.RWMutex
	sessions map[string]*chat.Session
}

func New(
	authenticator auth.Authenticator,
	presenceStore presence.Store,
	roomRegistry registry.Registry,
	historyStore history.Store,
	emitter Emitter,
	logger types.Logger,
	maxHistory int,
) *Pipeline {
	return &Pipeline{
		auth:       authenticator,
		presence:   presenceStore,
		registry:   roomRegistry,
		history:    historyStore,
		emitter:    emitter,
		logger:     logger,
		maxHistory: maxHistory,
		sessions:   make(map[string]*chat.Session),
	}
}

// Session returns the live session for a user id, if any.
func (p *Pipeline) Session(userID string) (*chat.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sess, ok := p.sessions[userID]
	return sess, ok
}

// Handle processes one inbound event and returns the response for its
// sender. All failures are caught here and rendered as a status code.
func (p *Pipeline) Handle(ctx context.Context, ev Event) Response {
	if ev.Verb == VerbConnect {
		return p.connect(ctx, ev)
	}

	sess, ok := p.Session(ev.Actor.ID)
	if !ok {
		return fail(newError(KindAuthFailed, "user %s is not logged in", ev.Actor.ID))
	}

	switch ev.Verb {
	case VerbDisconnect:
		return p.disconnect(ctx, sess)
	case VerbJoin:
		return p.join(ctx, sess, ev)
	case VerbLeave:
		return p.leave(ctx, sess, ev)
	case VerbCreate:
		return p.create(ctx, sess, ev)
	case VerbMessage:
		return p.message(ctx, sess, ev)
	case VerbHistory:
		return p.historyPage(ctx, ev)
	case VerbListRooms:
		return p.listRooms(ctx)
	case VerbGetAcl:
		return p.getAcl(ctx, sess, ev)
	case VerbSetAcl:
		return p.setAcl(ctx, sess, ev)
	case VerbStatus:
		return p.status(ctx, sess, ev)
	case VerbUsersInRoom:
		return p.usersInRoom(ctx, ev)
	case VerbReceived:
		return p.ack(ctx, sess, ev, chat.AckStatusDelivered)
	case VerbRead:
		return p.ack(ctx, sess, ev, chat.AckStatusRead)
	case VerbDelete:
		return p.delete(ctx, sess, ev)
	default:
		return fail(newError(KindBadRequest, "unknown verb %q", ev.Verb))
	}
}

func (p *Pipeline) connect(ctx context.Context, ev Event) Response {
	token, _ := attachment(ev.Actor.Attachments, "token")
	sess, err := p.auth.Authenticate(ctx, ev.Actor.ID, token)
	if err != nil {
		return fail(newError(KindAuthFailed, "authentication failed for user %s: %v", ev.Actor.ID, err))
	}

	if err := p.presence.SetOnline(ctx, sess.UserID); err != nil {
		return fail(err)
	}

	p.mu.Lock()
	p.sessions[sess.UserID] = sess
	p.mu.Unlock()

	p.emitter.UserStatus(ctx, events.UserStatusEvent{
		UserID:   sess.UserID,
		UserName: sess.UserName,
		Online:   true,
	})
	p.logger.Info("User connected", "userID", sess.UserID)
	return ok(nil)
}

// disconnect runs even when initiated by a transport error. Each step
// tolerates the prior one having partially failed.
func (p *Pipeline) disconnect(ctx context.Context, sess *chat.Session) Response {
	rooms, err := p.registry.RoomsForUser(ctx, sess.UserID)
	if err != nil {
		p.logger.Warn("Failed to list rooms during disconnect", "userID", sess.UserID, "error", err)
	}
	for _, room := range rooms {
		recipients, err := p.recipients(ctx, room.RoomID, sess.UserID, false)
		if err != nil {
			p.logger.Warn("Failed to resolve recipients during disconnect",
				"userID", sess.UserID, "roomID", room.RoomID, "error", err)
			continue
		}
		p.emitter.UserLeft(ctx, events.UserLeftEvent{
			RoomID:     room.RoomID,
			UserID:     sess.UserID,
			UserName:   sess.UserName,
			Recipients: recipients,
		})
	}

	if _, err := p.registry.RemoveAllForUser(ctx, sess.UserID); err != nil {
		p.logger.Warn("Failed to clear memberships during disconnect", "userID", sess.UserID, "error", err)
	}
	if err := p.presence.SetOffline(ctx, sess.UserID); err != nil {
		p.logger.Warn("Failed to set user offline during disconnect", "userID", sess.UserID, "error", err)
	}

	p.mu.Lock()
	delete(p.sessions, sess.UserID)
	p.mu.Unlock()

	p.emitter.UserStatus(ctx, events.UserStatusEvent{
		UserID:   sess.UserID,
		UserName: sess.UserName,
		Online:   false,
	})
	p.logger.Info("User disconnected", "userID", sess.UserID)
	return ok(nil)
}

func (p *Pipeline) create(ctx context.Context, sess *chat.Session, ev Event) Response {
	name := ev.Target.DisplayName
	if name == "" {
		return fail(newError(KindBadRequest, "room name is required"))
	}

	taken, err := p.registry.NameTaken(ctx, name)
	if err != nil {
		return fail(err)
	}
	if taken {
		return fail(newError(KindAlreadyExists, "room name %q is already taken", name))
	}

	room := chat.Room{
		ID:     uuid.New().String(),
		Name:   name,
		Owners: map[string]string{sess.UserID: sess.UserName},
		Acls:   map[string]string{},
	}
	if err := p.registry.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, registry.ErrRoomNameTaken) {
			return fail(newError(KindAlreadyExists, "room name %q is already taken", name))
		}
		return fail(err)
	}

	p.emitter.RoomCreated(ctx, events.RoomCreatedEvent{
		RoomID:    room.ID,
		RoomName:  room.Name,
		CreatedBy: sess.UserID,
	})
	p.logger.Info("Room created", "roomID", room.ID, "name", room.Name, "owner", sess.UserID)
	return ok(map[string]string{"room_id": room.ID, "room_name": room.Name})
}

func (p *Pipeline) join(ctx context.Context, sess *chat.Session, ev Event) Response {
	roomID := ev.Target.ID

	exists, err := p.registry.RoomExists(ctx, roomID)
	if err != nil {
		return fail(err)
	}
	if !exists {
		return fail(newError(KindNoSuchRoom, "no room with id %s", roomID))
	}

	acls, err := p.registry.GetAcls(ctx, roomID)
	if err != nil {
		return fail(err)
	}
	if err := registry.Authorize(sess, acls); err != nil {
		return fail(newError(KindAclDenied, "join denied: %v", err))
	}

	// members present before the join receive the broadcast
	recipients, err := p.recipients(ctx, roomID, sess.UserID, false)
	if err != nil {
		return fail(err)
	}

	if err := p.registry.JoinRoom(ctx, roomID, sess.UserID, sess.UserName); err != nil {
		return fail(err)
	}

	p.emitter.UserJoined(ctx, events.UserJoinedEvent{
		RoomID:     roomID,
		UserID:     sess.UserID,
		UserName:   sess.UserName,
		Recipients: recipients,
	})

	page, err := p.history.HistoryLatest(ctx, roomID, p.historyLimit())
	if err != nil {
		return fail(err)
	}
	p.logger.Info("User joined room", "userID", sess.UserID, "roomID", roomID)
	return ok(map[string]any{"room_id": roomID, "history": page})
}

func (p *Pipeline) leave(ctx context.Context, sess *chat.Session, ev Event) Response {
	roomID := ev.Target.ID

	if err := p.registry.LeaveRoom(ctx, roomID, sess.UserID); err != nil {
		return fail(err)
	}

	recipients, err := p.recipients(ctx, roomID, sess.UserID, false)
	if err != nil {
		return fail(err)
	}
	p.emitter.UserLeft(ctx, events.UserLeftEvent{
		RoomID:     roomID,
		UserID:     sess.UserID,
		UserName:   sess.UserName,
		Recipients: recipients,
	})
	p.logger.Info("User left room", "userID", sess.UserID, "roomID", roomID)
	return ok(nil)
}

func (p *Pipeline) message(ctx context.Context, sess *chat.Session, ev Event) Response {
	targetID := ev.Target.ID
	domain := chat.DomainRoom
	if ev.Target.ObjectType == "private" {
		domain = chat.DomainPrivate
	}

	if domain == chat.DomainRoom {
		member, err := p.registry.RoomContains(ctx, targetID, sess.UserID)
		if err != nil {
			return fail(err)
		}
		if !member {
			return fail(newError(KindNotMember, "user %s is not in room %s", sess.UserID, targetID))
		}
	}

	body, err := decodeContent(ev.Object.Content)
	if err != nil {
		return fail(newError(KindBadRequest, "%v", err))
	}

	messageID := ev.ID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	// the server stamps the authoritative publish time
	published := chat.Now()
	timestamp, err := chat.ParsePublished(published)
	if err != nil {
		return fail(err)
	}

	targetName := ev.Target.DisplayName
	if targetName == "" {
		if targetName, err = p.registry.GetRoomName(ctx, targetID); err != nil {
			return fail(err)
		}
	}

	msg := chat.Message{
		ID:           messageID,
		FromUserID:   sess.UserID,
		FromUserName: sess.UserName,
		TargetID:     targetID,
		TargetName:   targetName,
		Body:         body,
		Domain:       domain,
		Published:    published,
		Timestamp:    timestamp,
	}

	// persistence is authoritative: a failed write fails the verb and
	// nothing is broadcast
	if err := p.history.StoreMessage(ctx, msg); err != nil {
		return fail(err)
	}

	recipients, err := p.messageRecipients(ctx, domain, targetID, sess.UserID)
	if err != nil {
		p.logger.Warn("Failed to resolve recipients, message stored without broadcast",
			"messageID", messageID, "error", err)
		return ok(map[string]string{"message_id": messageID, "published": published})
	}

	for _, receiverID := range recipients {
		if receiverID == sess.UserID {
			continue
		}
		if err := p.history.AddAcks(ctx, targetID, receiverID, []string{messageID}, chat.AckStatusUnsent); err != nil {
			p.logger.Warn("Failed to seed ack", "messageID", messageID, "receiverID", receiverID, "error", err)
		}
	}

	outbound := ev
	outbound.ID = messageID
	outbound.Actor.Summary = sess.UserName
	outbound.Published = published
	payload, err := json.Marshal(outbound)
	if err != nil {
		return fail(err)
	}

	p.emitter.MessageSent(ctx, events.MessageSentEvent{
		MessageID:  messageID,
		RoomID:     targetID,
		UserID:     sess.UserID,
		Recipients: recipients,
		Payload:    payload,
	})
	return ok(map[string]string{"message_id": messageID, "published": published})
}

func (p *Pipeline) historyPage(ctx context.Context, ev Event) Response {
	page, err := p.history.HistoryLatest(ctx, ev.Target.ID, p.historyLimit())
	if err != nil {
		return fail(err)
	}
	return ok(page)
}

func (p *Pipeline) listRooms(ctx context.Context) Response {
	rooms, err := p.registry.AllRooms(ctx)
	if err != nil {
		return fail(err)
	}
	return ok(rooms)
}

func (p *Pipeline) getAcl(ctx context.Context, sess *chat.Session, ev Event) Response {
	roomID := ev.Target.ID

	member, err := p.registry.RoomContains(ctx, roomID, sess.UserID)
	if err != nil {
		return fail(err)
	}
	if !member {
		return fail(newError(KindNotMember, "user %s is not in room %s", sess.UserID, roomID))
	}

	acls, err := p.registry.GetAcls(ctx, roomID)
	if err != nil {
		if errors.Is(err, registry.ErrNoSuchRoom) {
			return fail(newError(KindNoSuchRoom, "no room with id %s", roomID))
		}
		return fail(err)
	}
	return ok(acls)
}

func (p *Pipeline) setAcl(ctx context.Context, sess *chat.Session, ev Event) Response {
	roomID := ev.Target.ID

	owner, err := p.registry.OwnersContain(ctx, roomID, sess.UserID)
	if err != nil {
		return fail(err)
	}
	if !owner {
		return fail(newError(KindNotOwner, "user %s does not own room %s", sess.UserID, roomID))
	}

	// an empty value removes the entry, anything else upserts it
	upserts := make(map[string]string)
	for _, entry := range ev.Object.Attachments {
		if entry.Content == "" {
			if err := p.registry.DeleteAcl(ctx, roomID, entry.ObjectType); err != nil {
				return fail(err)
			}
			continue
		}
		upserts[entry.ObjectType] = entry.Content
	}
	if len(upserts) > 0 {
		if err := p.registry.AddAcls(ctx, roomID, upserts); err != nil {
			return fail(err)
		}
	}
	p.logger.Info("Room acls updated", "roomID", roomID, "by", sess.UserID)
	return ok(nil)
}

func (p *Pipeline) status(ctx context.Context, sess *chat.Session, ev Event) Response {
	state, err := decodeContent(ev.Object.Content)
	if err != nil {
		return fail(newError(KindBadRequest, "%v", err))
	}

	var online bool
	switch state {
	case "online":
		err = p.presence.SetOnline(ctx, sess.UserID)
		online = true
	case "invisible":
		err = p.presence.SetInvisible(ctx, sess.UserID)
	case "offline":
		err = p.presence.SetOffline(ctx, sess.UserID)
	default:
		return fail(newError(KindBadRequest, "unknown status %q", state))
	}
	if err != nil {
		return fail(err)
	}

	p.emitter.UserStatus(ctx, events.UserStatusEvent{
		UserID:   sess.UserID,
		UserName: sess.UserName,
		Online:   online,
	})
	return ok(nil)
}

func (p *Pipeline) usersInRoom(ctx context.Context, ev Event) Response {
	members, err := p.registry.UsersInRoom(ctx, ev.Target.ID)
	if err != nil {
		if errors.Is(err, registry.ErrNoSuchRoom) {
			return fail(newError(KindNoSuchRoom, "no room with id %s", ev.Target.ID))
		}
		return fail(err)
	}
	return ok(members)
}

func (p *Pipeline) ack(ctx context.Context, sess *chat.Session, ev Event, status int) Response {
	messageIDs := make([]string, 0, len(ev.Object.Attachments))
	for _, entry := range ev.Object.Attachments {
		if entry.Content != "" {
			messageIDs = append(messageIDs, entry.Content)
		}
	}
	if len(messageIDs) == 0 {
		return fail(newError(KindBadRequest, "no message ids to acknowledge"))
	}

	if err := p.history.UpdateAcks(ctx, sess.UserID, messageIDs, status); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (p *Pipeline) delete(ctx context.Context, sess *chat.Session, ev Event) Response {
	messageID := ev.Object.ID
	if messageID == "" {
		return fail(newError(KindBadRequest, "message id is required"))
	}

	owner, err := p.registry.OwnersContain(ctx, ev.Target.ID, sess.UserID)
	if err != nil {
		return fail(err)
	}
	if !owner {
		return fail(newError(KindNotOwner, "user %s does not own room %s", sess.UserID, ev.Target.ID))
	}

	if err := p.history.DeleteMessage(ctx, messageID, true); err != nil {
		if errors.Is(err, history.ErrNoSuchMessage) {
			return fail(newError(KindBadRequest, "no message with id %s", messageID))
		}
		return fail(err)
	}
	p.logger.Info("Message deleted", "messageID", messageID, "by", sess.UserID)
	return ok(nil)
}

func (p *Pipeline) historyLimit() int {
	if p.maxHistory > 0 {
		return p.maxHistory
	}
	return defaultHistoryLimit
}

// recipients lists the members of a room minus the excluded user, dropping
// anyone whose presence is unavailable.
func (p *Pipeline) recipients(ctx context.Context, roomID, excludeUserID string, includeExcluded bool) ([]string, error) {
	members, err := p.registry.UsersInRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, registry.ErrNoSuchRoom) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]string, 0, len(members))
	for _, member := range members {
		if member.UserID == excludeUserID && !includeExcluded {
			continue
		}
		status, err := p.presence.Status(ctx, member.UserID)
		if err != nil {
			return nil, err
		}
		if status == chat.StatusUnavailable && member.UserID != excludeUserID {
			continue
		}
		out = append(out, member.UserID)
	}
	return out, nil
}

// messageRecipients includes the sender, so client state stays authoritative
// about what was actually delivered.
func (p *Pipeline) messageRecipients(ctx context.Context, domain, targetID, senderID string) ([]string, error) {
	if domain == chat.DomainPrivate {
		return []string{targetID, senderID}, nil
	}
	return p.recipients(ctx, targetID, senderID, true)
}
