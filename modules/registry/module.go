package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"

	"github.com/thenetcircle/dino-sub002/config"
)

// Module owns the room registry.
type Module struct {
	cfg      *config.Config
	logger   types.Logger
	client   *redis.Client
	registry Registry
}

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

func NewModule(cfg *config.Config, logger types.Logger) *Module {
	return &Module{cfg: cfg, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "registry"
}

// Registry returns the room registry; valid after Start.
func (m *Module) Registry() Registry {
	return m.registry
}

// Start connects the backing index.
func (m *Module) Start(ctx context.Context) error {
	addr := m.cfg.RedisAddr()
	if addr == "" || addr == "mock" {
		m.registry = NewMemoryRegistry()
		m.logger.Info("Registry module started with in-memory index")
		return nil
	}

	m.client = redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	m.registry = NewRedisRegistry(m.client)
	m.logger.Info("Registry module started", "redis", addr)
	return nil
}

// Stop closes the redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close redis connection: %w", err)
		}
	}
	m.logger.Info("Registry module stopped")
	return nil
}

// Health reports index reachability and the room count.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.registry == nil {
		return mono.HealthStatus{Healthy: false, Message: "registry not initialized"}
	}
	rooms, err := m.registry.AllRooms(ctx)
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "room index reachable",
		Details: map[string]any{"rooms": len(rooms)},
	}
}
