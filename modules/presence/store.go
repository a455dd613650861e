// Package presence tracks which users are connected, their online /
// invisible / unavailable state, and the multicast set of users who should
// still receive broadcasts.
package presence

import (
	"context"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// Store records and queries user presence.
//
// Three structures back each implementation: a bitmap keyed by integer user
// id answers cardinality queries, a set answers "who is online now", and the
// multicast set captures "who should still receive events" (available plus
// invisible) without exposing invisibility.
//
// All calls are idempotent and safe under concurrent invocation. A partially
// applied update (bitmap set but set-add failed) converges on the next call
// with the same user id.
type Store interface {
	// SetOnline marks the user available: bitmap bit set, online set and
	// multicast set joined.
	SetOnline(ctx context.Context, userID string) error

	// SetInvisible clears the bitmap bit and online set membership but
	// retains multicast membership: invisible users still receive
	// broadcasts without being countable as online.
	SetInvisible(ctx context.Context, userID string) error

	// SetOffline clears all three structures.
	SetOffline(ctx context.Context, userID string) error

	// Status returns the current state, StatusUnavailable if unknown.
	Status(ctx context.Context, userID string) (chat.Status, error)

	// OnlineCount is the population count of the online bitmap.
	OnlineCount(ctx context.Context) (int64, error)

	// InMulticast reports whether the user should receive broadcasts.
	InMulticast(ctx context.Context, userID string) (bool, error)

	// MulticastCount is the cardinality of the multicast set.
	MulticastCount(ctx context.Context) (int64, error)
}
