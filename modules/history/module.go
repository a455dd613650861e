package history

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"

	"github.com/thenetcircle/dino-sub002/config"
)

// Module owns the message log. The backend is selected by storage.type:
// "cassandra", "redis" or "mock".
type Module struct {
	cfg    *config.Config
	logger types.Logger
	store  Store
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
	return "history"
}

// Store returns the message log; valid after Start.
func (m *Module) Store() Store {
	return m.store
}

// Start bootstraps the configured backend. A schema failure here aborts
// startup.
func (m *Module) Start(ctx context.Context) error {
	switch m.cfg.Storage.Type {
	case "cassandra":
		m.store = NewCassandraStore(m.cfg, m.logger)
	case "redis":
		addr := m.cfg.RedisAddr()
		if addr == "" || addr == "mock" {
			return fmt.Errorf("storage type redis needs a real redis_host, got %q", m.cfg.RedisHost)
		}
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		m.store = NewRedisStore(client, m.cfg.MaxHistory)
	case "", "mock":
		m.store = NewMemoryStore()
	default:
		return fmt.Errorf("unknown storage type %q", m.cfg.Storage.Type)
	}

	if err := m.store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize history store: %w", err)
	}
	m.logger.Info("History module started", "storage", m.cfg.Storage.Type)
	return nil
}

// Stop closes the backend.
func (m *Module) Stop(_ context.Context) error {
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close history store: %w", err)
		}
	}
	m.logger.Info("History module stopped")
	return nil
}

// Health reports backend reachability.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{Healthy: false, Message: "store not initialized"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "history store ready",
		Details: map[string]any{"storage": m.cfg.Storage.Type},
	}
}
