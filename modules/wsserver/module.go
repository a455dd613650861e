package wsserver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/thenetcircle/dino-sub002/modules/broadcast"
	"github.com/thenetcircle/dino-sub002/modules/history"
	"github.com/thenetcircle/dino-sub002/modules/observe"
	"github.com/thenetcircle/dino-sub002/modules/pipeline"
	"github.com/thenetcircle/dino-sub002/modules/registry"
)

// Module is the WebSocket transport, built on Fiber. It owns the listener;
// the event semantics live in the pipeline module.
type Module struct {
	addr     string
	logger   types.Logger
	app      *fiber.App
	handlers *Handlers

	pipelineModule  *pipeline.Module
	broadcastModule *broadcast.Module
	registryModule  *registry.Module
	historyModule   *history.Module
	observeModule   *observe.Module
}

func NewModule(
	addr string,
	pipelineModule *pipeline.Module,
	broadcastModule *broadcast.Module,
	registryModule *registry.Module,
	historyModule *history.Module,
	observeModule *observe.Module,
	logger types.Logger,
) *Module {
	return &Module{
		addr:            addr,
		logger:          logger,
		pipelineModule:  pipelineModule,
		broadcastModule: broadcastModule,
		registryModule:  registryModule,
		historyModule:   historyModule,
		observeModule:   observeModule,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ws-server"
}

// Start builds the Fiber app and begins listening. Depends on the pipeline
// and store modules having started first.
func (m *Module) Start(_ context.Context) error {
	m.app = fiber.New(fiber.Config{
		AppName:               "dino",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})
	m.app.Use(recover.New())

	m.handlers = NewHandlers(
		m.pipelineModule.Pipeline(),
		m.broadcastModule.Hub(),
		m.registryModule.Registry(),
		m.historyModule.Store(),
		m.logger,
	)
	m.registerRoutes()

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("WebSocket server started", "addr", m.addr)
	return nil
}

// Stop gracefully shuts down the listener.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.logger.Info("WebSocket server stopped")
	return nil
}

func (m *Module) registerRoutes() {
	m.app.Get("/health", m.handlers.HealthCheck)
	m.app.Get("/logs", m.observeModule.LogsHandler())

	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handlers.HandleWebSocket))

	api := m.app.Group("/api/v1")
	api.Get("/rooms", m.handlers.ListRooms)
	api.Get("/rooms/:id/history", m.handlers.GetRoomHistory)
}

func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message)
	return c.Status(code).JSON(fiber.Map{"error": message})
}
