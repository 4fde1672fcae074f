package registry

import (
	"github.com/fieldline/gridcast/internal/resilience/breaker"
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithBreakerOptions sets the options applied to every model's breaker.
func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(r *Registry) {
		r.breakerOpts = opts
	}
}
