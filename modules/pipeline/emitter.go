package pipeline

import (
	"context"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/thenetcircle/dino-sub002/events"
)

// busEmitter publishes pipeline events onto the application event bus. A
// publish failure after the authoritative write is logged and swallowed; the
// message will surface on the next history read.
type busEmitter struct {
	bus    mono.EventBus
	logger types.Logger
}

func newBusEmitter(bus mono.EventBus, logger types.Logger) *busEmitter {
	return &busEmitter{bus: bus, logger: logger}
}

func (e *busEmitter) MessageSent(_ context.Context, event events.MessageSentEvent) {
	if err := events.MessageSentV1.Publish(e.bus, event, nil); err != nil {
		e.logger.Warn("Failed to publish MessageSent event", "error", err)
	}
}

func (e *busEmitter) UserJoined(_ context.Context, event events.UserJoinedEvent) {
	if err := events.UserJoinedV1.Publish(e.bus, event, nil); err != nil {
		e.logger.Warn("Failed to publish UserJoined event", "error", err)
	}
}

func (e *busEmitter) UserLeft(_ context.Context, event events.UserLeftEvent) {
	if err := events.UserLeftV1.Publish(e.bus, event, nil); err != nil {
		e.logger.Warn("Failed to publish UserLeft event", "error", err)
	}
}

func (e *busEmitter) RoomCreated(_ context.Context, event events.RoomCreatedEvent) {
	if err := events.RoomCreatedV1.Publish(e.bus, event, nil); err != nil {
		e.logger.Warn("Failed to publish RoomCreated event", "error", err)
	}
}

func (e *busEmitter) UserStatus(_ context.Context, event events.UserStatusEvent) {
	if err := events.UserStatusV1.Publish(e.bus, event, nil); err != nil {
		e.logger.Warn("Failed to publish UserStatus event", "error", err)
	}
}

var _ Emitter = (*busEmitter)(nil)
