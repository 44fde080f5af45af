package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/spectre/internal/adapters/mq/queue"
	worker "github.com/okian/spectre/internal/adapters/mq/worker"
	"github.com/okian/spectre/internal/adapters/repository"
	"github.com/okian/spectre/internal/domain/binning"
	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/polyfit"
	"github.com/okian/spectre/internal/domain/selection"
	logging "github.com/okian/spectre/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

// mockFitter records calls and returns a model tagged with the channel.
type mockFitter struct {
	errors   map[int]error
	delay    time.Duration
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
	mu       sync.Mutex
}

func newMockFitter() *mockFitter {
	return &mockFitter{errors: make(map[int]error)}
}

func (m *mockFitter) Fit(_ binning.Events, set *interval.Set, channel int, order selection.Order) (*selection.Result, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(m.delay)

	m.mu.Lock()
	err := m.errors[channel]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &selection.Result{Model: &polyfit.Model{Channel: channel, Order: int(order), FitSet: set}}, nil
}

func (m *mockFitter) setError(channel int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[channel] = err
}

func newQueue() *queue.InMemoryQueue[worker.Job] {
	return queue.NewInMemoryQueue[worker.Job](queue.WithCapacity(64))
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		q := newQueue()
		fitter := newMockFitter()

		convey.Convey("When created with and without options", func() {
			w1 := worker.NewInMemoryWorker(q, fitter)
			w2 := worker.NewInMemoryWorker(q, fitter, worker.WithName("fit-0"), worker.WithLogger(logging.Get()))

			convey.Convey("Then both are usable", func() {
				convey.So(w1, convey.ShouldNotBeNil)
				convey.So(w2, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When a running worker is shut down", func() {
			w := worker.NewInMemoryWorker(q, fitter)
			go w.Run(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := w.Shutdown(ctx)

			convey.Convey("Then it stops without error", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	set := interval.MustParse("-10-0,10-20")

	convey.Convey("Given a pool of four workers", t, func() {
		fitter := newMockFitter()
		fitter.delay = 5 * time.Millisecond
		pool := worker.NewPool(4, newQueue(), fitter)
		ctx := context.Background()
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(ctx) }()

		convey.Convey("When every channel is fitted", func() {
			results, err := pool.FitAll(ctx, nil, set, selection.Order(2), 16)

			convey.Convey("Then results come back in channel order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(results), convey.ShouldEqual, 16)
				for c, r := range results {
					convey.So(r.Model.Channel, convey.ShouldEqual, c)
					convey.So(r.Model.Order, convey.ShouldEqual, 2)
					convey.So(r.Model.FitSet, convey.ShouldEqual, set)
				}
				convey.So(fitter.calls.Load(), convey.ShouldEqual, int64(16))
			})

			convey.Convey("Then channels were fitted concurrently", func() {
				convey.So(fitter.peak.Load(), convey.ShouldBeGreaterThan, int64(1))
				convey.So(fitter.peak.Load(), convey.ShouldBeLessThanOrEqualTo, int64(4))
			})
		})

		convey.Convey("When several channels fail", func() {
			fitter.setError(7, polyfit.ErrInsufficientData)
			fitter.setError(3, polyfit.ErrSingularFit)
			results, err := pool.FitAll(ctx, nil, set, selection.Auto, 10)

			convey.Convey("Then the lowest failing channel is reported after the join", func() {
				convey.So(results, convey.ShouldBeNil)
				convey.So(errors.Is(err, polyfit.ErrSingularFit), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "channel 3")
				convey.So(fitter.calls.Load(), convey.ShouldEqual, int64(10))
			})
		})

		convey.Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := pool.FitAll(cctx, nil, set, selection.Auto, 200)

			convey.Convey("Then the fit is abandoned", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool whose start context is cancelled", t, func() {
		fitter := newMockFitter()
		pool := worker.NewPool(2, newQueue(), fitter)
		ctx, cancel := context.WithCancel(context.Background())
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(context.Background()) }()
		cancel()

		select {
		case <-pool.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("workers did not exit after cancellation")
		}

		convey.Convey("When every channel is fitted with a live context", func() {
			errCh := make(chan error, 1)
			go func() {
				_, err := pool.FitAll(context.Background(), nil, set, selection.Auto, 4)
				errCh <- err
			}()

			convey.Convey("Then the fit fails fast instead of waiting for replies", func() {
				select {
				case err := <-errCh:
					convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
				case <-time.After(2 * time.Second):
					t.Fatal("FitAll blocked after the workers exited")
				}
				convey.So(fitter.calls.Load(), convey.ShouldEqual, int64(0))
			})
		})
	})

	convey.Convey("Given a pool that was never started", t, func() {
		pool := worker.NewPool(2, newQueue(), newMockFitter())

		_, err := pool.FitAll(context.Background(), nil, set, selection.Auto, 2)
		convey.So(errors.Is(err, worker.ErrNotStarted), convey.ShouldBeTrue)
		convey.So(pool.Size(), convey.ShouldEqual, 2)
	})
}

func TestPoolDeterministicAcrossWorkerCounts(t *testing.T) {
	convey.Convey("Given a real selector and event list", t, func() {
		times := []float64{-9.2, -8.1, -7.7, -5, -3, -1, 1, 3, 5, 11, 12, 13.5, 14, 16, 18.3, 19.9}
		channels := []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0, 1, 2, 0, 1, 2, 0}
		store, err := repository.FromArrays(times, channels, make([]float64, len(times)), 3)
		convey.So(err, convey.ShouldBeNil)
		set := interval.MustParse("-10-0,10-20")
		sel := selection.NewSelector()
		ctx := context.Background()

		fit := func(workers int) []*selection.Result {
			pool := worker.NewPool(workers, newQueue(), sel)
			pool.Start(ctx)
			defer func() { _ = pool.Shutdown(ctx) }()
			res, err := pool.FitAll(ctx, store, set, selection.Auto, 3)
			convey.So(err, convey.ShouldBeNil)
			return res
		}

		one, many := fit(1), fit(3)

		convey.Convey("Then the models do not depend on the worker count", func() {
			for c := range one {
				convey.So(many[c].Model.Order, convey.ShouldEqual, one[c].Model.Order)
				convey.So(many[c].Model.Coefficients, convey.ShouldResemble, one[c].Model.Coefficients)
			}
		})
	})
}
