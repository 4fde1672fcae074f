// Package breaker implements the per-model circuit breaker state machine.
//
// States: healthy -> degraded after N consecutive failures; degraded ->
// unavailable after M consecutive failures or a load failure; unavailable ->
// half_open after the cool-down, routing exactly one probe; half_open ->
// healthy on success, back to unavailable on failure. One broken or slow
// model never degrades the whole ensemble, and recovery is automatic.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's current position in the state machine.
type State string

const (
	StateHealthy     State = "healthy"
	StateDegraded    State = "degraded"
	StateUnavailable State = "unavailable"
	StateHalfOpen    State = "half_open"
)

// Default breaker configuration constants.
const (
	defaultDegradedThreshold    = 3
	defaultUnavailableThreshold = 5
	defaultCooldown             = 60 * time.Second
	latencyWindowSize           = 32
)

// Breaker guards one model. All transitions funnel through its mutex; reads
// return a snapshot without blocking writers for long.
type Breaker struct {
	mu sync.Mutex

	state               State
	consecutiveFailures int
	cooldownUntil       time.Time
	probeInFlight       bool
	lastTransition      time.Time

	// Rolling operational stats for the health endpoint.
	totalFailures  int64
	totalSuccesses int64
	latencies      [latencyWindowSize]time.Duration
	latencyCount   int
	latencyNext    int

	degradedThreshold    int
	unavailableThreshold int
	cooldown             time.Duration
	now                  func() time.Time
}

// New builds a Breaker in the healthy state.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:                StateHealthy,
		degradedThreshold:    defaultDegradedThreshold,
		unavailableThreshold: defaultUnavailableThreshold,
		cooldown:             defaultCooldown,
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastTransition = b.now()
	return b
}

// Allow reports whether the model may be invoked right now. While
// unavailable it returns false until the cool-down elapses, then transitions
// to half_open and admits exactly one probe request; further callers are
// rejected until the probe reports back.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHealthy, StateDegraded:
		return true
	case StateUnavailable:
		if b.now().Before(b.cooldownUntil) {
			return false
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// OnSuccess records a successful invocation and its latency.
func (b *Breaker) OnSuccess(latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	b.recordLatency(latency)
	b.consecutiveFailures = 0

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		b.transition(StateHealthy)
	case StateDegraded:
		b.transition(StateHealthy)
	}
}

// OnFailure records a failed invocation (including a timeout) and advances
// the state machine.
func (b *Breaker) OnFailure(latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.recordLatency(latency)
	b.consecutiveFailures++

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		b.trip()
	case StateHealthy:
		if b.consecutiveFailures >= b.unavailableThreshold {
			b.trip()
		} else if b.consecutiveFailures >= b.degradedThreshold {
			b.transition(StateDegraded)
		}
	case StateDegraded:
		if b.consecutiveFailures >= b.unavailableThreshold {
			b.trip()
		}
	}
}

// ForceUnavailable trips the breaker immediately, used when the model's
// artifact fails to load. The process never crashes on a bad artifact.
func (b *Breaker) ForceUnavailable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeInFlight = false
	b.trip()
}

// trip moves to unavailable and restarts the cool-down. Callers hold b.mu.
func (b *Breaker) trip() {
	b.cooldownUntil = b.now().Add(b.cooldown)
	b.transition(StateUnavailable)
}

func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.state = next
	b.lastTransition = b.now()
}

func (b *Breaker) recordLatency(latency time.Duration) {
	b.latencies[b.latencyNext] = latency
	b.latencyNext = (b.latencyNext + 1) % latencyWindowSize
	if b.latencyCount < latencyWindowSize {
		b.latencyCount++
	}
}

// Stats is a point-in-time snapshot of the breaker, safe to serialize.
type Stats struct {
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalFailures       int64         `json:"total_failures"`
	TotalSuccesses      int64         `json:"total_successes"`
	AvgLatencyMs        float64       `json:"avg_latency_ms"`
	LastTransition      time.Time     `json:"last_transition"`
	CooldownRemaining   time.Duration `json:"-"`
}

// Snapshot returns the breaker's current stats.
func (b *Breaker) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total time.Duration
	for i := 0; i < b.latencyCount; i++ {
		total += b.latencies[i]
	}
	avg := 0.0
	if b.latencyCount > 0 {
		avg = float64(total.Milliseconds()) / float64(b.latencyCount)
	}

	remaining := time.Duration(0)
	if b.state == StateUnavailable {
		if until := b.cooldownUntil.Sub(b.now()); until > 0 {
			remaining = until
		}
	}

	return Stats{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		TotalFailures:       b.totalFailures,
		TotalSuccesses:      b.totalSuccesses,
		AvgLatencyMs:        avg,
		LastTransition:      b.lastTransition,
		CooldownRemaining:   remaining,
	}
}

// State returns the current state without the full snapshot.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
