package pool

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fieldline/gridcast/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestPoolCreation(t *testing.T) {
	Convey("Given pool construction", t, func() {
		Convey("When created with an explicit size", func() {
			p := New(4)
			So(p.Size(), ShouldEqual, 4)
		})

		Convey("When created with a non-positive size", func() {
			p := New(0)
			So(p.Size(), ShouldBeGreaterThan, 0)
		})

		Convey("When created with a custom queue depth", func() {
			p := New(2, WithQueueDepth(8), WithName("batch"))
			So(cap(p.jobs), ShouldEqual, 8)
		})
	})
}

func TestPoolExecution(t *testing.T) {
	Convey("Given a started pool", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p := New(4)
		p.Start(ctx)
		defer func() { _ = p.Shutdown(context.Background()) }()

		Convey("When jobs are submitted", func() {
			const jobs = 32
			var executed atomic.Int64
			var wg sync.WaitGroup

			for i := 0; i < jobs; i++ {
				wg.Add(1)
				err := p.Submit(ctx, func(ctx context.Context) {
					defer wg.Done()
					executed.Add(1)
				})
				So(err, ShouldBeNil)
			}
			wg.Wait()

			So(executed.Load(), ShouldEqual, jobs)
		})

		Convey("When jobs run concurrently across workers", func() {
			var peak atomic.Int64
			var current atomic.Int64
			var wg sync.WaitGroup

			for i := 0; i < 8; i++ {
				wg.Add(1)
				err := p.Submit(ctx, func(ctx context.Context) {
					defer wg.Done()
					n := current.Add(1)
					for {
						old := peak.Load()
						if n <= old || peak.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(30 * time.Millisecond)
					current.Add(-1)
				})
				So(err, ShouldBeNil)
			}
			wg.Wait()

			So(peak.Load(), ShouldBeGreaterThan, 1)
		})
	})
}

func TestPoolShutdown(t *testing.T) {
	Convey("Given a pool with in-flight work", t, func() {
		ctx := context.Background()
		p := New(2)
		p.Start(ctx)

		var finished atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			So(p.Submit(ctx, func(ctx context.Context) {
				defer wg.Done()
				time.Sleep(50 * time.Millisecond)
				finished.Add(1)
			}), ShouldBeNil)
		}

		Convey("When the pool shuts down", func() {
			// Give workers a moment to pick the jobs up.
			time.Sleep(10 * time.Millisecond)
			So(p.Shutdown(ctx), ShouldBeNil)
			wg.Wait()
			So(finished.Load(), ShouldEqual, 2)

			Convey("Then further submissions are rejected", func() {
				err := p.Submit(ctx, func(ctx context.Context) {})
				So(errors.Is(err, ErrPoolClosed), ShouldBeTrue)
			})

			Convey("And a second shutdown is harmless", func() {
				So(p.Shutdown(ctx), ShouldBeNil)
			})
		})
	})
}

func TestPoolSubmitCancellation(t *testing.T) {
	Convey("Given a pool with a full queue and no workers draining it", t, func() {
		p := New(1, WithQueueDepth(1))
		// Never started: the queue can hold one job, then submissions block.

		So(p.Submit(context.Background(), func(ctx context.Context) {}), ShouldBeNil)

		Convey("When the submitting context expires", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			err := p.Submit(ctx, func(ctx context.Context) {})
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}
