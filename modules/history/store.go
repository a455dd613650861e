// Package history is the durable message log: messages indexed by room, by
// sender, by time window and by id, with soft deletion and per-recipient
// acknowledgement tracking.
package history

import (
	"context"
	"errors"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// ErrNoSuchMessage is returned when a message id resolves to no stored row.
var ErrNoSuchMessage = errors.New("no such message")

// Store is the driver contract for the message log. Implementations write
// each message to every index that covers it, so each read below is a single
// index-selective scan.
//
// Ack statuses form a lattice the store does not interpret beyond requiring
// monotonic non-decreasing updates per (receiver, message id).
type Store interface {
	// Init bootstraps schema idempotently; "already exists" is not an
	// error.
	Init(ctx context.Context) error

	// Close releases backend connections.
	Close() error

	// StoreMessage persists one message to all indexes.
	StoreMessage(ctx context.Context, msg chat.Message) error

	// GetMessage resolves a message id to its authoritative row,
	// including deleted ones. Returns ErrNoSuchMessage when unknown.
	GetMessage(ctx context.Context, messageID string) (chat.Message, error)

	// Messages returns every message for a target in clustering order,
	// sender first and published time within sender.
	Messages(ctx context.Context, targetID string) ([]chat.Message, error)

	// HistoryLatest returns the most recent non-deleted messages for a
	// target, newest first. A non-positive limit means no bound. An
	// empty history is an empty slice, not an error.
	HistoryLatest(ctx context.Context, targetID string, limit int) ([]chat.Message, error)

	// HistorySince returns messages for a target published at or after
	// the given epoch seconds, newest first.
	HistorySince(ctx context.Context, targetID string, since int64) ([]chat.Message, error)

	// HistoryBetween returns messages for a target inside the closed
	// epoch interval, newest first.
	HistoryBetween(ctx context.Context, targetID string, from, to int64) ([]chat.Message, error)

	// MessagesBySender returns messages from one sender. An empty
	// targetID means all targets; from/to of zero leave that end of the
	// time window open.
	MessagesBySender(ctx context.Context, senderID, targetID string, from, to int64) ([]chat.Message, error)

	// DeleteMessage soft-deletes by message id, optionally clearing the
	// body. Should the id resolve to several authoritative rows, all of
	// them are updated.
	DeleteMessage(ctx context.Context, messageID string, clearBody bool) error

	// UndeleteMessage restores visibility; a cleared body stays cleared.
	UndeleteMessage(ctx context.Context, messageID string) error

	// AddAcks records the given status for each message id toward one
	// receiver.
	AddAcks(ctx context.Context, targetID, receiverID string, messageIDs []string, status int) error

	// UpdateAcks advances the status for the given message ids toward
	// one receiver. Updates that would lower a status are ignored.
	UpdateAcks(ctx context.Context, receiverID string, messageIDs []string, status int) error

	// AcksFor returns the status per message id for one receiver,
	// restricted to the given ids when any are passed.
	AcksFor(ctx context.Context, receiverID string, messageIDs []string) (map[string]int, error)

	// AcksForStatus returns the message ids at exactly the given status
	// for one receiver.
	AcksForStatus(ctx context.Context, receiverID string, status int) ([]string, error)
}
