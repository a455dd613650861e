// Package chat defines the core entities shared by the presence, registry,
// history and pipeline modules.
package chat

// Domain values for a message: either a room broadcast or a private message.
const (
	DomainRoom    = "room"
	DomainPrivate = "private"
)

// Status is the tri-valued presence state of a user.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusInvisible   Status = "invisible"
	StatusUnavailable Status = "unavailable"
)

// KV representations of Status, kept compatible with the original key scheme.
const (
	KVStatusAvailable   = "1"
	KVStatusInvisible   = "3"
	KVStatusUnavailable = "4"
)

// Ack statuses form a lattice; updates are monotone non-decreasing per
// (receiver, message) pair. The store does not interpret the values.
const (
	AckStatusUnsent    = 0
	AckStatusDelivered = 1
	AckStatusRead      = 2
)

// Session holds the attributes of one authenticated connection. It is
// populated by the auth module on connect and read by ACL evaluation; it is
// passed explicitly through every pipeline operation.
type Session struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Age         string `json:"age"`
	Gender      string `json:"gender"`
	Membership  string `json:"membership"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Image       string `json:"image"`
	HasWebcam   string `json:"has_webcam"`
	FakeChecked string `json:"fake_checked"`
	Token       string `json:"token"`
}

// Value returns the session attribute for an ACL type, or "" if the type is
// not a session key.
func (s *Session) Value(aclType string) string {
	switch aclType {
	case "age":
		return s.Age
	case "gender":
		return s.Gender
	case "membership":
		return s.Membership
	case "country":
		return s.Country
	case "city":
		return s.City
	case "image":
		return s.Image
	case "has_webcam":
		return s.HasWebcam
	case "fake_checked":
		return s.FakeChecked
	}
	return ""
}

// Room is a named container with an owner set, an ACL and a member set; the
// unit of broadcast.
type Room struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	ChannelID   string            `json:"channel_id"`
	ChannelName string            `json:"channel_name"`
	Owners      map[string]string `json:"owners"` // user id -> user name
	Acls        map[string]string `json:"acls"`   // acl type -> acl value
}

// Member is one (user id, user name) occupant of a room.
type Member struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// RoomRef is one (room id, room name) entry in a user's joined set.
type RoomRef struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
}

// Message is one persisted chat event.
//
// (TargetID, FromUserID, Published, Timestamp) is a unique composite key;
// Timestamp is the epoch-seconds derivation of Published and is the sort key
// across the time-based history views.
type Message struct {
	ID           string `json:"message_id"`
	FromUserID   string `json:"from_user_id"`
	FromUserName string `json:"from_user_name"`
	TargetID     string `json:"target_id"`
	TargetName   string `json:"target_name"`
	Body         string `json:"body"`
	Domain       string `json:"domain"`
	Published    string `json:"published"` // ISO-8601, UTC
	Timestamp    int64  `json:"timestamp"` // epoch seconds, derived
	ChannelID    string `json:"channel_id"`
	ChannelName  string `json:"channel_name"`
	Deleted      bool   `json:"deleted"`
}

// Ack records how far a message has progressed toward one receiver.
type Ack struct {
	ReceiverID string `json:"receiver_id"`
	MessageID  string `json:"message_id"`
	Status     int    `json:"status"`
	TargetID   string `json:"target_id"`
}
