package presence

import (
	"context"
	"time"

	"github.com/cactus/go-statsd-client/v5/statsd"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/thenetcircle/dino-sub002/config"
)

const defaultGranularity = 2 * time.Second

// Reporter periodically gauges the online and multicast counts to statsd so
// dashboards can graph concurrency without querying the KV store.
type Reporter struct {
	statter  statsd.Statter
	store    Store
	logger   types.Logger
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

// NewReporter connects the statsd client. Granularity below one second falls
// back to the two second default.
func NewReporter(cfg config.Stats, store Store, logger types.Logger) (*Reporter, error) {
	statter, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address: cfg.Host,
		Prefix:  cfg.Prefix,
	})
	if err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.Granularity) * time.Second
	if interval < time.Second {
		interval = defaultGranularity
	}

	return &Reporter{
		statter:  statter,
		store:    store,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Start launches the polling loop.
func (r *Reporter) Start() {
	go r.run()
}

// Stop terminates the loop and closes the statsd client.
func (r *Reporter) Stop() {
	close(r.done)
	<-r.stopped
	if err := r.statter.Close(); err != nil {
		r.logger.Warn("Failed to close statsd client", "error", err)
	}
}

func (r *Reporter) run() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	online, err := r.store.OnlineCount(ctx)
	if err != nil {
		r.logger.Warn("Failed to read online count", "error", err)
		return
	}
	multicast, err := r.store.MulticastCount(ctx)
	if err != nil {
		r.logger.Warn("Failed to read multicast count", "error", err)
		return
	}

	if err := r.statter.Gauge("users.online", online, 1.0); err != nil {
		r.logger.Warn("Failed to send online gauge", "error", err)
	}
	if err := r.statter.Gauge("users.multicast", multicast, 1.0); err != nil {
		r.logger.Warn("Failed to send multicast gauge", "error", err)
	}
}
