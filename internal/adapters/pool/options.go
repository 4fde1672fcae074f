package pool

import (
	"github.com/fieldline/gridcast/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithName sets the pool name for identification and logging.
func WithName(name string) Option {
	return func(p *Pool) {
		if name != "" {
			p.name = name
		}
	}
}

// WithQueueDepth sets the submission queue capacity.
func WithQueueDepth(depth int) Option {
	return func(p *Pool) {
		if depth > 0 {
			p.queueDepth = depth
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(log logger.Logger) Option {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}
