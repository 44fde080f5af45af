// Package worker fits per-channel background models on a pool of goroutines.
//
// Channels are independent given the event list and the background
// selection, so a refit fans one job per channel out over the job queue and
// joins before anything is published.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	jobqueue "github.com/okian/spectre/internal/adapters/mq/queue"
	"github.com/okian/spectre/internal/domain/binning"
	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/selection"
	"github.com/okian/spectre/pkg/logger"
	"github.com/okian/spectre/pkg/metrics"
)

// Default worker configuration constants.
const (
	enqueueBackoff      = time.Millisecond
	poolShutdownTimeout = 30 * time.Second
)

// Job asks for the background model of one channel.
type Job struct {
	Events  binning.Events
	Set     *interval.Set
	Channel int
	Order   selection.Order

	reply chan<- Outcome
}

// Outcome is the answer to a Job.
type Outcome struct {
	Channel int
	Result  *selection.Result
	Err     error
}

// Fitter produces the model for one channel.
type Fitter interface {
	Fit(events binning.Events, set *interval.Set, channel int, order selection.Order) (*selection.Result, error)
}

// Queue defines how workers receive jobs. Offer refuses a job with the queue
// package's ErrFull or ErrClosed.
type Queue interface {
	Offer(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes fit jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue  Queue
	fitter Fitter
	name   string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, fitter Fitter, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		fitter:   fitter,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job Job) {
	start := time.Now()
	res, err := w.fitter.Fit(job.Events, job.Set, job.Channel, job.Order)
	metrics.RecordWorkerJob(time.Since(start), err)

	if err != nil {
		metrics.RecordErrorByComponent("worker", "fit_error")
		w.logger.Debug(ctx, "fit failed",
			logger.Int("channel", job.Channel),
			logger.String("order", job.Order.String()),
			logger.Error(err),
		)
	}

	job.reply <- Outcome{Channel: job.Channel, Result: res, Err: err}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	fitter  Fitter

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{} // closed once every worker has exited

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive workerCount uses one
// worker per CPU.
func NewPool(workerCount int, queue Queue, fitter Fitter) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		fitter:  fitter,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(queue, fitter, WithName("worker-"+strconv.Itoa(i)))
	}

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Done returns a channel closed once every worker has exited, or nil before
// Start.
func (p *Pool) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Start starts all workers in the pool. The workers run until ctx is
// cancelled or the pool is shut down.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, worker := range p.workers {
		wg.Add(1)
		go func(w *InMemoryWorker) {
			defer wg.Done()
			w.Run(runCtx)
		}(worker)
	}
	go func() {
		wg.Wait()
		close(done)
		metrics.UpdateWorkerActiveCount(0)
	}()

	p.cancel = cancel
	p.done = done
	p.started = true
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// FitAll fits every channel in [0, nChannels) and returns the results in
// channel order. It waits for every job before returning. When several
// channels fail, the error of the lowest channel is returned. ErrStopped is
// returned once the workers have exited.
func (p *Pool) FitAll(ctx context.Context, events binning.Events, set *interval.Set, order selection.Order, nChannels int) ([]*selection.Result, error) {
	p.mu.Lock()
	started, done := p.started, p.done
	p.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}

	reply := make(chan Outcome, nChannels)
	for c := 0; c < nChannels; c++ {
		job := Job{Events: events, Set: set, Channel: c, Order: order, reply: reply}
		for {
			err := p.queue.Offer(ctx, job)
			if err == nil {
				break
			}
			if errors.Is(err, jobqueue.ErrClosed) {
				return nil, ErrStopped
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fit cancelled: %w", ctx.Err())
			case <-done:
				return nil, fmt.Errorf("%w: workers exited", ErrStopped)
			case <-time.After(enqueueBackoff):
			}
		}
	}

	results := make([]*selection.Result, nChannels)
	errs := make([]error, nChannels)
	record := func(o Outcome) {
		results[o.Channel] = o.Result
		errs[o.Channel] = o.Err
	}
	for received := 0; received < nChannels; {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fit cancelled: %w", ctx.Err())
		case o := <-reply:
			record(o)
			received++
		case <-done:
			// Replies sent before the workers exited are still buffered.
			select {
			case o := <-reply:
				record(o)
				received++
			default:
				return nil, fmt.Errorf("%w: workers exited", ErrStopped)
			}
		}
	}

	for c, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
	}
	return results, nil
}

// Shutdown closes the queue and waits for the workers to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	p.mu.Lock()
	started, stopWorkers := p.started, p.cancel
	p.started = false
	p.mu.Unlock()
	if !started {
		return nil
	}

	for i, worker := range p.workers {
		if err := worker.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	stopWorkers()
	metrics.UpdateWorkerActiveCount(0)

	return nil
}
