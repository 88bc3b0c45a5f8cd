package bridge

import (
	"context"

	"go.uber.org/zap"
)

// DefaultWorkers is the number of host operations allowed to run at once.
const DefaultWorkers = 8

// Option configures a Bridge.
type Option func(*config)

type config struct {
	ctx     context.Context
	workers int
	logger  *zap.Logger
}

func defaultConfig() config {
	return config{
		ctx:     context.Background(),
		workers: DefaultWorkers,
		logger:  zap.NewNop(),
	}
}

// WithWorkers bounds how many operations execute concurrently. Extra
// operations wait for a free worker.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger for scheduling diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithContext sets the parent context of every operation.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}
