package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

type roomRecord struct {
	name    string
	members map[string]string // user id -> user name
	owners  map[string]string
	acls    map[string]string
}

// MemoryRegistry is the in-process registry, used when redis_host is "mock"
// and in unit tests.
type MemoryRegistry struct {
	mu        sync.RWMutex
	rooms     map[string]*roomRecord
	nameIndex map[string]string            // lowercased name -> room id
	userRooms map[string]map[string]string // user id -> room id -> room name
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		rooms:     make(map[string]*roomRecord),
		nameIndex: make(map[string]string),
		userRooms: make(map[string]map[string]string),
	}
}

func (r *MemoryRegistry) CreateRoom(_ context.Context, room chat.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lower := strings.ToLower(room.Name)
	if _, taken := r.nameIndex[lower]; taken {
		return ErrRoomNameTaken
	}

	record := &roomRecord{
		name:    room.Name,
		members: make(map[string]string),
		owners:  make(map[string]string),
		acls:    make(map[string]string),
	}
	for userID, userName := range room.Owners {
		record.owners[userID] = userName
	}
	for aclType, value := range room.Acls {
		record.acls[aclType] = value
	}

	r.rooms[room.ID] = record
	r.nameIndex[lower] = room.ID
	return nil
}

func (r *MemoryRegistry) JoinRoom(_ context.Context, roomID, userID, userName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return ErrNoSuchRoom
	}

	record.members[userID] = userName
	if r.userRooms[userID] == nil {
		r.userRooms[userID] = make(map[string]string)
	}
	r.userRooms[userID][roomID] = record.name
	return nil
}

func (r *MemoryRegistry) LeaveRoom(_ context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.rooms[roomID]; ok {
		delete(record.members, userID)
	}
	if rooms, ok := r.userRooms[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.userRooms, userID)
		}
	}
	return nil
}

func (r *MemoryRegistry) RemoveAllForUser(_ context.Context, userID string) ([]chat.RoomRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]chat.RoomRef, 0, len(r.userRooms[userID]))
	for roomID, roomName := range r.userRooms[userID] {
		if record, ok := r.rooms[roomID]; ok {
			delete(record.members, userID)
		}
		left = append(left, chat.RoomRef{RoomID: roomID, RoomName: roomName})
	}
	delete(r.userRooms, userID)

	sort.Slice(left, func(i, j int) bool { return left[i].RoomID < left[j].RoomID })
	return left, nil
}

func (r *MemoryRegistry) UsersInRoom(_ context.Context, roomID string) ([]chat.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNoSuchRoom
	}

	members := make([]chat.Member, 0, len(record.members))
	for userID, userName := range record.members {
		members = append(members, chat.Member{UserID: userID, UserName: userName})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

func (r *MemoryRegistry) RoomsForUser(_ context.Context, userID string) ([]chat.RoomRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]chat.RoomRef, 0, len(r.userRooms[userID]))
	for roomID, roomName := range r.userRooms[userID] {
		rooms = append(rooms, chat.RoomRef{RoomID: roomID, RoomName: roomName})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	return rooms, nil
}

func (r *MemoryRegistry) AllRooms(_ context.Context) ([]chat.RoomRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]chat.RoomRef, 0, len(r.rooms))
	for roomID, record := range r.rooms {
		rooms = append(rooms, chat.RoomRef{RoomID: roomID, RoomName: record.name})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	return rooms, nil
}

func (r *MemoryRegistry) RoomExists(_ context.Context, roomID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok, nil
}

func (r *MemoryRegistry) NameTaken(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, taken := r.nameIndex[strings.ToLower(name)]
	return taken, nil
}

func (r *MemoryRegistry) RoomContains(_ context.Context, roomID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return false, nil
	}
	_, member := record.members[userID]
	return member, nil
}

func (r *MemoryRegistry) OwnersContain(_ context.Context, roomID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return false, nil
	}
	_, owner := record.owners[userID]
	return owner, nil
}

func (r *MemoryRegistry) GetOwners(_ context.Context, roomID string) ([]chat.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNoSuchRoom
	}

	owners := make([]chat.Member, 0, len(record.owners))
	for userID, userName := range record.owners {
		owners = append(owners, chat.Member{UserID: userID, UserName: userName})
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].UserID < owners[j].UserID })
	return owners, nil
}

func (r *MemoryRegistry) GetRoomName(_ context.Context, roomID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if record, ok := r.rooms[roomID]; ok {
		return record.name, nil
	}
	return "", nil
}

func (r *MemoryRegistry) AddAcls(_ context.Context, roomID string, acls map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return ErrNoSuchRoom
	}
	for aclType, value := range acls {
		record.acls[aclType] = value
	}
	return nil
}

func (r *MemoryRegistry) DeleteAcl(_ context.Context, roomID, aclType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return ErrNoSuchRoom
	}
	delete(record.acls, aclType)
	return nil
}

func (r *MemoryRegistry) GetAcls(_ context.Context, roomID string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNoSuchRoom
	}

	acls := make(map[string]string, len(record.acls))
	for aclType, value := range record.acls {
		acls[aclType] = value
	}
	return acls, nil
}

var _ Registry = (*MemoryRegistry)(nil)
