package cache

import (
	"context"
	"sync"

	"github.com/fieldline/gridcast/internal/domain/model"
	"github.com/fieldline/gridcast/pkg/metrics"
)

// ComputeFunc produces a prediction for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (model.CombinedPrediction, error)

// call is one in-flight computation shared by every waiter on its key.
type call struct {
	done  chan struct{}
	value model.CombinedPrediction
	err   error
}

// FlightGroup collapses concurrent computations for the same key into
// exactly one. The first caller starts the computation; everyone else waits
// on its result. A waiter's cancellation abandons only its own wait: the
// shared computation keeps running because its result is still useful to
// other waiters and to the cache.
type FlightGroup struct {
	mu    sync.Mutex
	calls map[Key]*call
}

// NewFlightGroup builds an empty FlightGroup.
func NewFlightGroup() *FlightGroup {
	return &FlightGroup{calls: make(map[Key]*call)}
}

// Do returns the result of fn for key, running fn at most once across all
// concurrent callers. The computation runs on a context detached from the
// caller's cancellation so the first caller timing out cannot kill work
// other waiters depend on.
func (g *FlightGroup) Do(ctx context.Context, key Key, fn ComputeFunc) (model.CombinedPrediction, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		metrics.RecordFlightCollapse()
		return g.wait(ctx, c)
	}

	c := &call{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.calls, key)
			g.mu.Unlock()
			close(c.done)
		}()
		c.value, c.err = fn(context.WithoutCancel(ctx))
	}()

	return g.wait(ctx, c)
}

// wait blocks until the shared call completes or the caller's own context
// is done, whichever comes first.
func (g *FlightGroup) wait(ctx context.Context, c *call) (model.CombinedPrediction, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return model.CombinedPrediction{}, ctx.Err()
	}
}

// Len returns the number of computations currently in flight.
func (g *FlightGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
