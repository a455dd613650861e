package events

import (
	"encoding/json"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessageSentEvent is emitted after a message has been persisted. Recipients
// is the member set of the target computed at send time, minus anyone whose
// presence was unavailable; the sender is included so client state stays
// authoritative.
type MessageSentEvent struct {
	MessageID  string          `json:"message_id"`
	RoomID     string          `json:"room_id"`
	UserID     string          `json:"user_id"`
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"` // decoded activity, as delivered
}

// UserJoinedEvent is emitted when a user joins a room; delivered to the
// members present before the join.
type UserJoinedEvent struct {
	RoomID     string          `json:"room_id"`
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// UserLeftEvent is emitted when a user leaves a room, including the implicit
// leaves during disconnect cleanup.
type UserLeftEvent struct {
	RoomID     string          `json:"room_id"`
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// RoomCreatedEvent is emitted when a new room is created; broadcast to every
// subscriber of the global listing.
type RoomCreatedEvent struct {
	RoomID    string          `json:"room_id"`
	RoomName  string          `json:"room_name"`
	CreatedBy string          `json:"created_by"`
	Payload   json.RawMessage `json:"payload"`
}

// UserStatusEvent covers presence transitions (connected / disconnected /
// invisible); delivered to the multicast set.
type UserStatusEvent struct {
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Online   bool            `json:"online"`
	Payload  json.RawMessage `json:"payload"`
}

// Event definitions for the pipeline module.
var (
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"pipeline",
		"MessageSent",
		"v1",
	)

	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"pipeline",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"pipeline",
		"UserLeft",
		"v1",
	)

	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"pipeline",
		"RoomCreated",
		"v1",
	)

	UserStatusV1 = helper.EventDefinition[UserStatusEvent](
		"pipeline",
		"UserStatus",
		"v1",
	)
)
