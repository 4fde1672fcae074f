package breaker

import "time"

// Option applies a configuration option to the Breaker.
type Option func(*Breaker)

// WithDegradedThreshold sets the consecutive-failure count that moves a
// healthy model to degraded.
func WithDegradedThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.degradedThreshold = n
		}
	}
}

// WithUnavailableThreshold sets the consecutive-failure count that trips the
// breaker to unavailable.
func WithUnavailableThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.unavailableThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays unavailable before routing a
// half-open probe.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}
