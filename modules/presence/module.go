package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"

	"github.com/thenetcircle/dino-sub002/config"
)

// Module owns the presence store and the statsd reporter.
type Module struct {
	cfg      *config.Config
	logger   types.Logger
	client   *redis.Client
	store    Store
	reporter *Reporter
}

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the presence module. The backing store is selected from
// redis_host: "mock" keeps everything in process.
func NewModule(cfg *config.Config, logger types.Logger) *Module {
	return &Module{cfg: cfg, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Store returns the presence store; valid after Start.
func (m *Module) Store() Store {
	return m.store
}

// Start connects the backing store and launches the stats reporter when one
// is configured.
func (m *Module) Start(ctx context.Context) error {
	addr := m.cfg.RedisAddr()
	if addr == "" || addr == "mock" {
		m.store = NewMemoryStore()
		m.logger.Info("Presence module started with in-memory store")
	} else {
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
		m.store = NewRedisStore(m.client)
		m.logger.Info("Presence module started", "redis", addr)
	}

	if m.cfg.Stats.Host != "" {
		reporter, err := NewReporter(m.cfg.Stats, m.store, m.logger)
		if err != nil {
			return fmt.Errorf("failed to create stats reporter: %w", err)
		}
		m.reporter = reporter
		m.reporter.Start()
	}
	return nil
}

// Stop halts the reporter and closes the redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.reporter != nil {
		m.reporter.Stop()
	}
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close redis connection: %w", err)
		}
	}
	m.logger.Info("Presence module stopped")
	return nil
}

// Health reports store reachability and the current online count.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{Healthy: false, Message: "store not initialized"}
	}
	count, err := m.store.OnlineCount(ctx)
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "presence store reachable",
		Details: map[string]any{"online": count},
	}
}
