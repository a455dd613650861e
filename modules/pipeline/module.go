package pipeline

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/thenetcircle/dino-sub002/config"
	"github.com/thenetcircle/dino-sub002/events"
	"github.com/thenetcircle/dino-sub002/modules/auth"
	"github.com/thenetcircle/dino-sub002/modules/history"
	"github.com/thenetcircle/dino-sub002/modules/presence"
	"github.com/thenetcircle/dino-sub002/modules/registry"
)

// Module wires the event pipeline. The store-owning modules are injected
// from main; their stores are pulled in Start, after they have started.
type Module struct {
	cfg      *config.Config
	logger   types.Logger
	eventBus mono.EventBus

	authModule     *auth.Module
	presenceModule *presence.Module
	registryModule *registry.Module
	historyModule  *history.Module

	pipeline *Pipeline
}

var (
	_ mono.Module              = (*Module)(nil)
	_ mono.EventBusAwareModule = (*Module)(nil)
	_ mono.EventEmitterModule  = (*Module)(nil)
)

func NewModule(cfg *config.Config, logger types.Logger) *Module {
	return &Module{cfg: cfg, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "pipeline"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// SetModules injects the store-owning modules. Called from main before the
// application starts; the modules must be registered ahead of this one.
func (m *Module) SetModules(
	authModule *auth.Module,
	presenceModule *presence.Module,
	registryModule *registry.Module,
	historyModule *history.Module,
) {
	m.authModule = authModule
	m.presenceModule = presenceModule
	m.registryModule = registryModule
	m.historyModule = historyModule
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
		events.RoomCreatedV1.ToBase(),
		events.UserStatusV1.ToBase(),
	}
}

// Pipeline returns the event pipeline; valid after Start.
func (m *Module) Pipeline() *Pipeline {
	return m.pipeline
}

// Start assembles the pipeline over the injected modules' stores.
func (m *Module) Start(_ context.Context) error {
	if m.authModule == nil || m.presenceModule == nil || m.registryModule == nil || m.historyModule == nil {
		return fmt.Errorf("pipeline dependencies not injected")
	}

	m.pipeline = New(
		m.authModule.Authenticator(),
		m.presenceModule.Store(),
		m.registryModule.Registry(),
		m.historyModule.Store(),
		newBusEmitter(m.eventBus, m.logger),
		m.logger,
		m.cfg.MaxHistory,
	)
	m.logger.Info("Pipeline module started")
	return nil
}

// Stop is a no-op; the stores are owned by their own modules.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Pipeline module stopped")
	return nil
}
