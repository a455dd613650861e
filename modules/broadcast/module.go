package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/thenetcircle/dino-sub002/events"
)

// Module consumes pipeline events and fans them out through the hub.
type Module struct {
	hub    *Hub
	logger types.Logger
}

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

func NewModule(logger types.Logger) *Module {
	return &Module{
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Hub returns the connection hub for the transport layer.
func (m *Module) Hub() *Hub {
	return m.hub
}

// Start is a no-op; the hub needs no background loop.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Broadcast module started")
	return nil
}

// Stop closes every client stream.
func (m *Module) Stop(_ context.Context) error {
	count := m.hub.ClientCount()
	m.hub.CloseAll()
	m.logger.Info("Broadcast module stopped", "clients", count)
	return nil
}

// Health reports the attached client count.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"connected_clients": m.hub.ClientCount()},
	}
}

// RegisterEventConsumers subscribes to the pipeline's events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageSentV1, m.handleMessageSent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserJoinedV1, m.handleUserJoined, m,
	); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserLeftV1, m.handleUserLeft, m,
	); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomCreatedV1, m.handleRoomCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserStatusV1, m.handleUserStatus, m,
	); err != nil {
		return fmt.Errorf("failed to register UserStatus consumer: %w", err)
	}

	m.logger.Info("Registered broadcast event consumers")
	return nil
}

// WireEvent is the envelope delivered to clients for non-message events.
type WireEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id,omitempty"`
	RoomName string `json:"room_name,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Online   bool   `json:"online,omitempty"`
}

func (m *Module) deliver(recipients []string, wire WireEvent) error {
	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", wire.Type, err)
	}
	m.hub.DeliverTo(recipients, payload)
	return nil
}

func (m *Module) handleMessageSent(_ context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	// the payload is the decoded activity, forwarded as-is
	m.hub.DeliverTo(event.Recipients, event.Payload)
	m.logger.Debug("Broadcast message", "messageID", event.MessageID, "recipients", len(event.Recipients))
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, event events.UserJoinedEvent, _ *mono.Msg) error {
	return m.deliver(event.Recipients, WireEvent{
		Type:     "user_joined",
		RoomID:   event.RoomID,
		UserID:   event.UserID,
		UserName: event.UserName,
	})
}

func (m *Module) handleUserLeft(_ context.Context, event events.UserLeftEvent, _ *mono.Msg) error {
	return m.deliver(event.Recipients, WireEvent{
		Type:     "user_left",
		RoomID:   event.RoomID,
		UserID:   event.UserID,
		UserName: event.UserName,
	})
}

func (m *Module) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	payload, err := json.Marshal(WireEvent{
		Type:     "room_created",
		RoomID:   event.RoomID,
		RoomName: event.RoomName,
		UserID:   event.CreatedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to encode room_created event: %w", err)
	}
	m.hub.DeliverAll(payload)
	return nil
}

func (m *Module) handleUserStatus(_ context.Context, event events.UserStatusEvent, _ *mono.Msg) error {
	payload, err := json.Marshal(WireEvent{
		Type:     "status",
		UserID:   event.UserID,
		UserName: event.UserName,
		Online:   event.Online,
	})
	if err != nil {
		return fmt.Errorf("failed to encode status event: %w", err)
	}
	m.hub.DeliverAll(payload)
	return nil
}
