package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fieldline/gridcast/internal/domain/model"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 10, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testKey(home, away string) Key {
	return Key{Home: home, Away: away, Season: 2025, Week: 8, SchemaVersion: "v3"}
}

func testPrediction(margin float64) model.CombinedPrediction {
	return model.CombinedPrediction{
		Margin:         margin,
		WinProbability: 0.6,
		Confidence:     0.7,
	}
}

func TestCacheGetPut(t *testing.T) {
	Convey("Given an empty cache", t, func() {
		c := New()
		defer c.Close()
		key := testKey("alpha", "beta")

		Convey("When the key was never stored", func() {
			_, ok := c.Get(key)
			So(ok, ShouldBeFalse)
		})

		Convey("When a prediction is stored", func() {
			c.Put(key, testPrediction(7))

			got, ok := c.Get(key)
			So(ok, ShouldBeTrue)
			So(got.Margin, ShouldEqual, 7)
			So(c.Len(), ShouldEqual, 1)
		})

		Convey("When a key is stored twice", func() {
			c.Put(key, testPrediction(7))
			c.Put(key, testPrediction(-3))

			got, ok := c.Get(key)
			So(ok, ShouldBeTrue)
			So(got.Margin, ShouldEqual, -3)
			So(c.Len(), ShouldEqual, 1)
		})

		Convey("When keys differ only by schema version", func() {
			other := key
			other.SchemaVersion = "v2"
			c.Put(key, testPrediction(7))

			_, ok := c.Get(other)
			So(ok, ShouldBeFalse)
		})

		Convey("When hit and miss counters accumulate", func() {
			c.Put(key, testPrediction(7))
			c.Get(key)
			c.Get(key)
			c.Get(testKey("gamma", "delta"))

			hits, misses := c.Stats()
			So(hits, ShouldEqual, 2)
			So(misses, ShouldEqual, 1)
		})
	})
}

func TestCacheExpiry(t *testing.T) {
	Convey("Given a cache with a one-hour TTL", t, func() {
		clock := newManualClock()
		c := New(WithTTL(time.Hour), WithClock(clock.Now))
		defer c.Close()
		key := testKey("alpha", "beta")
		c.Put(key, testPrediction(7))

		Convey("When the entry is still fresh", func() {
			clock.Advance(59 * time.Minute)
			_, ok := c.Get(key)
			So(ok, ShouldBeTrue)
		})

		Convey("When the TTL elapses", func() {
			clock.Advance(61 * time.Minute)

			_, ok := c.Get(key)
			So(ok, ShouldBeFalse)

			Convey("Then the entry lingers until swept", func() {
				So(c.Len(), ShouldEqual, 1)
				c.sweep()
				So(c.Len(), ShouldEqual, 0)
			})
		})

		Convey("When re-put after expiry, the entry is fresh again", func() {
			clock.Advance(61 * time.Minute)
			c.Put(key, testPrediction(3))

			got, ok := c.Get(key)
			So(ok, ShouldBeTrue)
			So(got.Margin, ShouldEqual, 3)
		})
	})
}

func TestCacheSweeper(t *testing.T) {
	Convey("Given a cache with a short sweep interval", t, func() {
		clock := newManualClock()
		c := New(
			WithTTL(time.Minute),
			WithSweepInterval(10*time.Millisecond),
			WithClock(clock.Now),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)
		defer c.Close()

		c.Put(testKey("alpha", "beta"), testPrediction(7))
		clock.Advance(2 * time.Minute)

		Convey("Then the sweeper eventually reclaims expired entries", func() {
			deadline := time.Now().Add(2 * time.Second)
			for c.Len() > 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(c.Len(), ShouldEqual, 0)
		})
	})
}

func TestFlightGroupCollapse(t *testing.T) {
	Convey("Given concurrent requests for the same key", t, func() {
		g := NewFlightGroup()
		key := testKey("alpha", "beta")

		var computations atomic.Int64
		release := make(chan struct{})
		fn := func(ctx context.Context) (model.CombinedPrediction, error) {
			computations.Add(1)
			<-release
			return testPrediction(7), nil
		}

		Convey("When many callers race", func() {
			const callers = 16
			var wg sync.WaitGroup
			results := make([]model.CombinedPrediction, callers)
			errs := make([]error, callers)

			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					results[n], errs[n] = g.Do(context.Background(), key, fn)
				}(i)
			}

			// Let everyone join the flight, then release the computation.
			for g.Len() == 0 {
				time.Sleep(time.Millisecond)
			}
			time.Sleep(20 * time.Millisecond)
			close(release)
			wg.Wait()

			Convey("Then the computation ran exactly once", func() {
				So(computations.Load(), ShouldEqual, 1)
				for i := 0; i < callers; i++ {
					So(errs[i], ShouldBeNil)
					So(results[i].Margin, ShouldEqual, 7)
				}
				So(g.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestFlightGroupDistinctKeys(t *testing.T) {
	Convey("Given requests for different keys", t, func() {
		g := NewFlightGroup()

		var computations atomic.Int64
		fn := func(ctx context.Context) (model.CombinedPrediction, error) {
			computations.Add(1)
			return testPrediction(1), nil
		}

		_, err1 := g.Do(context.Background(), testKey("alpha", "beta"), fn)
		_, err2 := g.Do(context.Background(), testKey("gamma", "delta"), fn)

		Convey("Then each key computes independently", func() {
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(computations.Load(), ShouldEqual, 2)
		})
	})
}

func TestFlightGroupErrorSharing(t *testing.T) {
	Convey("Given a computation that fails", t, func() {
		g := NewFlightGroup()
		key := testKey("alpha", "beta")
		boom := errors.New("upstream down")

		release := make(chan struct{})
		fn := func(ctx context.Context) (model.CombinedPrediction, error) {
			<-release
			return model.CombinedPrediction{}, boom
		}

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, errs[n] = g.Do(context.Background(), key, fn)
			}(i)
		}
		for g.Len() == 0 {
			time.Sleep(time.Millisecond)
		}
		close(release)
		wg.Wait()

		Convey("Then every waiter observes the same error", func() {
			for _, err := range errs {
				So(err, ShouldEqual, boom)
			}
		})
	})
}

func TestFlightGroupCallerCancellation(t *testing.T) {
	Convey("Given a slow computation", t, func() {
		g := NewFlightGroup()
		key := testKey("alpha", "beta")

		started := make(chan struct{})
		release := make(chan struct{})
		var startedOnce sync.Once
		var sawCancel atomic.Bool
		fn := func(ctx context.Context) (model.CombinedPrediction, error) {
			startedOnce.Do(func() { close(started) })
			<-release
			// The shared computation is detached from any single caller.
			sawCancel.Store(ctx.Err() != nil)
			return testPrediction(7), nil
		}

		Convey("When the first caller gives up", func() {
			ctx, cancel := context.WithCancel(context.Background())

			done := make(chan error, 1)
			go func() {
				_, err := g.Do(ctx, key, fn)
				done <- err
			}()

			<-started
			cancel()
			err := <-done
			So(errors.Is(err, context.Canceled), ShouldBeTrue)

			Convey("Then a second caller still gets the shared result", func() {
				type outcome struct {
					pred model.CombinedPrediction
					err  error
				}
				second := make(chan outcome, 1)
				go func() {
					pred, err := g.Do(context.Background(), key, fn)
					second <- outcome{pred: pred, err: err}
				}()

				close(release)
				got := <-second
				So(got.err, ShouldBeNil)
				So(got.pred.Margin, ShouldEqual, 7)
				So(sawCancel.Load(), ShouldBeFalse)
			})
		})
	})
}
