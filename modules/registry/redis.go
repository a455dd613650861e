package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// Redis key layout for the room index.
const (
	keyRooms      = "rooms"           // hash: room id -> room name
	keyRoomUsers  = "room:%s"         // hash: user id -> user name
	keyRoomName   = "room:name:%s"    // string: room name for id
	keyRoomAcls   = "room:acl:%s"     // hash: acl type -> value
	keyRoomOwners = "room:owners:%s"  // hash: user id -> user name
	keyUserRooms  = "user:rooms:%s"   // hash: room id -> room name
)

// RedisRegistry is the KV-backed registry shared between nodes.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) CreateRoom(ctx context.Context, room chat.Room) error {
	taken, err := r.NameTaken(ctx, room.Name)
	if err != nil {
		return err
	}
	if taken {
		return ErrRoomNameTaken
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, keyRooms, room.ID, room.Name)
	pipe.Set(ctx, fmt.Sprintf(keyRoomName, room.ID), room.Name, 0)
	for userID, userName := range room.Owners {
		pipe.HSet(ctx, fmt.Sprintf(keyRoomOwners, room.ID), userID, userName)
	}
	for aclType, value := range room.Acls {
		pipe.HSet(ctx, fmt.Sprintf(keyRoomAcls, room.ID), aclType, value)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create room %s: %w", room.ID, err)
	}
	return nil
}

func (r *RedisRegistry) JoinRoom(ctx context.Context, roomID, userID, userName string) error {
	roomName, err := r.client.HGet(ctx, keyRooms, roomID).Result()
	if err == redis.Nil {
		return ErrNoSuchRoom
	}
	if err != nil {
		return fmt.Errorf("failed to look up room %s: %w", roomID, err)
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, fmt.Sprintf(keyRoomUsers, roomID), userID, userName)
	pipe.HSet(ctx, fmt.Sprintf(keyUserRooms, userID), roomID, roomName)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}
	return nil
}

func (r *RedisRegistry) LeaveRoom(ctx context.Context, roomID, userID string) error {
	pipe := r.client.Pipeline()
	pipe.HDel(ctx, fmt.Sprintf(keyRoomUsers, roomID), userID)
	pipe.HDel(ctx, fmt.Sprintf(keyUserRooms, userID), roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to leave room %s: %w", roomID, err)
	}
	return nil
}

func (r *RedisRegistry) RemoveAllForUser(ctx context.Context, userID string) ([]chat.RoomRef, error) {
	rooms, err := r.client.HGetAll(ctx, fmt.Sprintf(keyUserRooms, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms for user %s: %w", userID, err)
	}
	if len(rooms) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	left := make([]chat.RoomRef, 0, len(rooms))
	for roomID, roomName := range rooms {
		pipe.HDel(ctx, fmt.Sprintf(keyRoomUsers, roomID), userID)
		left = append(left, chat.RoomRef{RoomID: roomID, RoomName: roomName})
	}
	pipe.Del(ctx, fmt.Sprintf(keyUserRooms, userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to remove user %s from rooms: %w", userID, err)
	}

	sort.Slice(left, func(i, j int) bool { return left[i].RoomID < left[j].RoomID })
	return left, nil
}

func (r *RedisRegistry) UsersInRoom(ctx context.Context, roomID string) ([]chat.Member, error) {
	exists, err := r.RoomExists(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNoSuchRoom
	}

	users, err := r.client.HGetAll(ctx, fmt.Sprintf(keyRoomUsers, roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users in room %s: %w", roomID, err)
	}

	members := make([]chat.Member, 0, len(users))
	for userID, userName := range users {
		members = append(members, chat.Member{UserID: userID, UserName: userName})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

func (r *RedisRegistry) RoomsForUser(ctx context.Context, userID string) ([]chat.RoomRef, error) {
	rooms, err := r.client.HGetAll(ctx, fmt.Sprintf(keyUserRooms, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms for user %s: %w", userID, err)
	}

	refs := make([]chat.RoomRef, 0, len(rooms))
	for roomID, roomName := range rooms {
		refs = append(refs, chat.RoomRef{RoomID: roomID, RoomName: roomName})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].RoomID < refs[j].RoomID })
	return refs, nil
}

func (r *RedisRegistry) AllRooms(ctx context.Context) ([]chat.RoomRef, error) {
	rooms, err := r.client.HGetAll(ctx, keyRooms).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	refs := make([]chat.RoomRef, 0, len(rooms))
	for roomID, roomName := range rooms {
		refs = append(refs, chat.RoomRef{RoomID: roomID, RoomName: roomName})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].RoomID < refs[j].RoomID })
	return refs, nil
}

func (r *RedisRegistry) RoomExists(ctx context.Context, roomID string) (bool, error) {
	exists, err := r.client.HExists(ctx, keyRooms, roomID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check room %s: %w", roomID, err)
	}
	return exists, nil
}

func (r *RedisRegistry) NameTaken(ctx context.Context, name string) (bool, error) {
	names, err := r.client.HVals(ctx, keyRooms).Result()
	if err != nil {
		return false, fmt.Errorf("failed to list room names: %w", err)
	}

	lower := strings.ToLower(name)
	for _, existing := range names {
		if strings.ToLower(existing) == lower {
			return true, nil
		}
	}
	return false, nil
}

func (r *RedisRegistry) RoomContains(ctx context.Context, roomID, userID string) (bool, error) {
	member, err := r.client.HExists(ctx, fmt.Sprintf(keyRoomUsers, roomID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check membership in room %s: %w", roomID, err)
	}
	return member, nil
}

func (r *RedisRegistry) OwnersContain(ctx context.Context, roomID, userID string) (bool, error) {
	owner, err := r.client.HExists(ctx, fmt.Sprintf(keyRoomOwners, roomID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check ownership of room %s: %w", roomID, err)
	}
	return owner, nil
}

func (r *RedisRegistry) GetOwners(ctx context.Context, roomID string) ([]chat.Member, error) {
	exists, err := r.RoomExists(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNoSuchRoom
	}

	owners, err := r.client.HGetAll(ctx, fmt.Sprintf(keyRoomOwners, roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list owners of room %s: %w", roomID, err)
	}

	members := make([]chat.Member, 0, len(owners))
	for userID, userName := range owners {
		members = append(members, chat.Member{UserID: userID, UserName: userName})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

func (r *RedisRegistry) GetRoomName(ctx context.Context, roomID string) (string, error) {
	name, err := r.client.Get(ctx, fmt.Sprintf(keyRoomName, roomID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read name of room %s: %w", roomID, err)
	}
	return name, nil
}

func (r *RedisRegistry) AddAcls(ctx context.Context, roomID string, acls map[string]string) error {
	exists, err := r.RoomExists(ctx, roomID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoSuchRoom
	}
	if len(acls) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for aclType, value := range acls {
		pipe.HSet(ctx, fmt.Sprintf(keyRoomAcls, roomID), aclType, value)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set acls on room %s: %w", roomID, err)
	}
	return nil
}

func (r *RedisRegistry) DeleteAcl(ctx context.Context, roomID, aclType string) error {
	exists, err := r.RoomExists(ctx, roomID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoSuchRoom
	}
	if err := r.client.HDel(ctx, fmt.Sprintf(keyRoomAcls, roomID), aclType).Err(); err != nil {
		return fmt.Errorf("failed to delete acl %s on room %s: %w", aclType, roomID, err)
	}
	return nil
}

func (r *RedisRegistry) GetAcls(ctx context.Context, roomID string) (map[string]string, error) {
	exists, err := r.RoomExists(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNoSuchRoom
	}

	acls, err := r.client.HGetAll(ctx, fmt.Sprintf(keyRoomAcls, roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read acls of room %s: %w", roomID, err)
	}
	return acls, nil
}

var _ Registry = (*RedisRegistry)(nil)
