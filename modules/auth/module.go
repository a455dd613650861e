package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"

	"github.com/thenetcircle/dino-sub002/config"
)

// Module owns the authenticator.
type Module struct {
	cfg    *config.Config
	logger types.Logger
	client *redis.Client
	auth   Authenticator
}

var _ mono.Module = (*Module)(nil)

func NewModule(cfg *config.Config, logger types.Logger) *Module {
	return &Module{cfg: cfg, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "auth"
}

// Authenticator returns the token validator; valid after Start.
func (m *Module) Authenticator() Authenticator {
	return m.auth
}

// Start selects the backend. Testing configuration accepts every token.
func (m *Module) Start(ctx context.Context) error {
	addr := m.cfg.RedisAddr()
	if addr == "" || addr == "mock" {
		m.auth = NewMemoryAuthenticator(m.cfg.Testing)
		m.logger.Info("Auth module started with in-memory sessions", "allowAll", m.cfg.Testing)
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
	m.auth = NewRedisAuthenticator(m.client)
	m.logger.Info("Auth module started", "redis", addr)
	return nil
}

// Stop closes the redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close redis connection: %w", err)
		}
	}
	m.logger.Info("Auth module stopped")
	return nil
}
