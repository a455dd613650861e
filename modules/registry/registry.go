// Package registry is the authoritative index of rooms: their names, member
// lists, owners and access control entries, plus the per-user reverse index
// of joined rooms.
package registry

import (
	"context"
	"errors"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// Registry errors. Callers map these onto wire status codes.
var (
	ErrNoSuchRoom    = errors.New("no such room")
	ErrRoomNameTaken = errors.New("room name already taken")
)

// Registry tracks rooms and their membership. Implementations keep the room
// index and the per-user reverse index consistent with each other: a user is
// in the member list of room R exactly when R is in the user's room list.
type Registry interface {
	// CreateRoom registers a new room. Fails with ErrRoomNameTaken when
	// another room already holds the name, compared case-insensitively.
	CreateRoom(ctx context.Context, room chat.Room) error

	// JoinRoom adds the user to the member list. Joining a room the user
	// is already in is a no-op. Fails with ErrNoSuchRoom when the room
	// does not exist.
	JoinRoom(ctx context.Context, roomID, userID, userName string) error

	// LeaveRoom removes the user from the member list. Leaving a room the
	// user is not in is a no-op.
	LeaveRoom(ctx context.Context, roomID, userID string) error

	// RemoveAllForUser removes the user from every room and returns the
	// rooms that were left, for departure broadcasts during disconnect.
	RemoveAllForUser(ctx context.Context, userID string) ([]chat.RoomRef, error)

	// UsersInRoom lists the current members.
	UsersInRoom(ctx context.Context, roomID string) ([]chat.Member, error)

	// RoomsForUser lists the rooms the user has joined.
	RoomsForUser(ctx context.Context, userID string) ([]chat.RoomRef, error)

	// AllRooms lists every registered room.
	AllRooms(ctx context.Context) ([]chat.RoomRef, error)

	// RoomExists reports whether the room id is registered.
	RoomExists(ctx context.Context, roomID string) (bool, error)

	// NameTaken reports whether any room holds the name, ignoring case.
	NameTaken(ctx context.Context, name string) (bool, error)

	// RoomContains reports whether the user is a member of the room.
	RoomContains(ctx context.Context, roomID, userID string) (bool, error)

	// OwnersContain reports whether the user owns the room.
	OwnersContain(ctx context.Context, roomID, userID string) (bool, error)

	// GetOwners lists the owners of the room.
	GetOwners(ctx context.Context, roomID string) ([]chat.Member, error)

	// GetRoomName returns the room name, or the empty string when the
	// room does not exist.
	GetRoomName(ctx context.Context, roomID string) (string, error)

	// AddAcls merges the given entries into the room's access control
	// table, overwriting entries of the same type.
	AddAcls(ctx context.Context, roomID string, acls map[string]string) error

	// DeleteAcl removes one entry by type; removing an absent type is a
	// no-op.
	DeleteAcl(ctx context.Context, roomID, aclType string) error

	// GetAcls returns the room's access control table.
	GetAcls(ctx context.Context, roomID string) (map[string]string, error)
}
