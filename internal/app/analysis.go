// Package service wires the event store, the per-channel fit workers and the
// spectrum builder into the selection-driven Analysis.
package service

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/spectre/internal/adapters/mq/queue"
	workerpool "github.com/okian/spectre/internal/adapters/mq/worker"
	"github.com/okian/spectre/internal/adapters/repository"
	"github.com/okian/spectre/internal/domain/binning"
	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/model"
	"github.com/okian/spectre/internal/domain/polyfit"
	"github.com/okian/spectre/internal/domain/selection"
	"github.com/okian/spectre/internal/domain/spectrum"
	"github.com/okian/spectre/pkg/logger"
	"github.com/okian/spectre/pkg/metrics"
)

// Default analysis configuration constants.
const (
	defaultBinWidth     = 1.0
	defaultSignificance = 0.05
	queueSlack          = 2 // queue capacity per channel
)

// Selection change kinds, used in logs and metrics.
const (
	kindInit       = "init"
	kindSource     = "source"
	kindBackground = "background"
	kindOrder      = "order"
)

// state is an immutable snapshot of the selections and everything derived
// from them. A new snapshot replaces the old one only after every derived
// value was computed.
type state struct {
	source     *interval.Set
	background *interval.Set
	order      selection.Order

	// models[c] was fitted on exactly background.
	models []*polyfit.Model
	trials [][]selection.Trial

	observed      *model.PHA
	backgroundPHA *model.PHA
}

// Analysis holds one event list and the selections made on it.
//
// Writers are serialised; readers see either the previous or the new
// snapshot, never a partial update. A rejected selection leaves the previous
// snapshot active.
type Analysis struct {
	id      string
	store   repository.Store
	builder *spectrum.Builder

	// Configuration
	workerCount  int
	binWidth     float64
	maxOrder     int
	significance float64
	initialOrder selection.Order
	reference    float64
	refDefaulted bool

	// Fitting
	selector *selection.Selector
	queue    *eventqueue.InMemoryQueue[workerpool.Job]
	pool     *workerpool.Pool
	cancel   context.CancelFunc

	mu      sync.Mutex
	started bool
	current atomic.Pointer[state]

	logger logger.Logger
}

// New constructs an Analysis over store. Call Start before making selections.
func New(store repository.Store, opts ...Option) *Analysis {
	a := &Analysis{
		id:           uuid.New().String(),
		store:        store,
		builder:      spectrum.NewBuilder(store),
		workerCount:  runtime.NumCPU(),
		binWidth:     defaultBinWidth,
		maxOrder:     selection.MaxSupportedOrder,
		significance: defaultSignificance,
		initialOrder: selection.Auto,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = logger.Get()
	}
	a.logger = a.logger.Named("analysis").With(logger.String("analysis_id", a.id))
	a.current.Store(&state{order: a.initialOrder})

	return a
}

// ID returns the unique identifier of this analysis.
func (a *Analysis) ID() string { return a.id }

// Start creates and starts the fit worker pool. The workers outlive ctx and
// run until Stop.
func (a *Analysis) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}

	a.selector = selection.NewSelector(
		selection.WithMaxOrder(a.maxOrder),
		selection.WithSignificance(a.significance),
		selection.WithBinWidth(a.binWidth),
	)
	a.queue = eventqueue.NewInMemoryQueue[workerpool.Job](
		eventqueue.WithCapacity(a.store.NumChannels() * queueSlack),
	)
	a.pool = workerpool.NewPool(a.workerCount, a.queue, a.selector)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.pool.Start(runCtx)
	a.cancel = cancel

	a.started = true
	a.logger.Info(ctx, "analysis started",
		logger.Int("events", a.store.Len()),
		logger.Int("channels", a.store.NumChannels()),
		logger.Int("workers", a.pool.Size()),
		logger.Float64("bin_width", a.binWidth),
		logger.Float64("significance", a.significance),
		logger.Int("max_order", a.maxOrder),
	)

	return nil
}

// Stop shuts the worker pool down. Derived results stay readable.
func (a *Analysis) Stop(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}

	if err := a.pool.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	a.cancel()
	a.started = false
	a.logger.Info(ctx, "analysis stopped")
}

// Init sets the source and background selections together and computes the
// derived state once.
func (a *Analysis) Init(ctx context.Context, source, background string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	src, err := parseSource(source)
	if err != nil {
		return a.reject(ctx, kindInit, err)
	}
	bkg, err := interval.Parse(background)
	if err != nil {
		return a.reject(ctx, kindInit, err)
	}

	next := *a.current.Load()
	next.source = src
	next.background = bkg
	return a.apply(ctx, kindInit, next, true, true)
}

// SetSourceInterval selects the source interval, e.g. "0-5". The observed
// and background spectra are rebuilt; the background models are kept.
func (a *Analysis) SetSourceInterval(ctx context.Context, specs ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	src, err := parseSource(specs...)
	if err != nil {
		return a.reject(ctx, kindSource, err)
	}

	next := *a.current.Load()
	next.source = src
	return a.apply(ctx, kindSource, next, false, true)
}

// SetBackgroundIntervals selects the background intervals, e.g.
// "-10-0,10-20", refits every channel and rebuilds the background spectrum.
func (a *Analysis) SetBackgroundIntervals(ctx context.Context, specs ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	bkg, err := interval.Parse(specs...)
	if err != nil {
		return a.reject(ctx, kindBackground, err)
	}

	next := *a.current.Load()
	next.background = bkg
	return a.apply(ctx, kindBackground, next, true, false)
}

// SetBackgroundOrder sets the polynomial order, "auto" or 0..4, and refits
// when a background selection exists.
func (a *Analysis) SetBackgroundOrder(ctx context.Context, setting string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	order, err := selection.ParseOrder(setting)
	if err != nil {
		return a.reject(ctx, kindOrder, err)
	}

	next := *a.current.Load()
	next.order = order
	return a.apply(ctx, kindOrder, next, true, false)
}

// BackgroundOrder returns the current order setting.
func (a *Analysis) BackgroundOrder() selection.Order {
	return a.current.Load().order
}

// SourceInterval returns the source selection, or nil.
func (a *Analysis) SourceInterval() *interval.Set {
	return a.current.Load().source
}

// BackgroundIntervals returns the background selection, or nil.
func (a *Analysis) BackgroundIntervals() *interval.Set {
	return a.current.Load().background
}

// Observed returns the observed spectrum over the source interval.
func (a *Analysis) Observed() (model.PHA, error) {
	s := a.current.Load()
	if s.observed == nil {
		return model.PHA{}, ErrNoSourceInterval
	}
	return clonePHA(*s.observed), nil
}

// Background returns the predicted background spectrum over the source
// interval.
func (a *Analysis) Background() (model.PHA, error) {
	s := a.current.Load()
	switch {
	case s.source == nil:
		return model.PHA{}, ErrNoSourceInterval
	case s.backgroundPHA == nil:
		return model.PHA{}, ErrNoBackgroundInterval
	}
	return clonePHA(*s.backgroundPHA), nil
}

// Models returns the per-channel background models, indexed by channel.
func (a *Analysis) Models() []*polyfit.Model {
	s := a.current.Load()
	if s.models == nil {
		return nil
	}
	out := make([]*polyfit.Model, len(s.models))
	copy(out, s.models)
	return out
}

// Trials returns the order search of every channel, indexed by channel.
func (a *Analysis) Trials() [][]selection.Trial {
	s := a.current.Load()
	if s.trials == nil {
		return nil
	}
	out := make([][]selection.Trial, len(s.trials))
	copy(out, s.trials)
	return out
}

// apply computes the derived state of next and publishes it. refit fits the
// background models again; rebuildObserved recounts the source interval.
func (a *Analysis) apply(ctx context.Context, kind string, next state, refit, rebuildObserved bool) error {
	if !a.started {
		return a.reject(ctx, kind, ErrNotStarted)
	}
	start := time.Now()

	if refit && next.background != nil {
		n := a.store.NumChannels()
		results, err := a.pool.FitAll(ctx, a.store, next.background, next.order, n)
		if err != nil {
			return a.reject(ctx, kind, fmt.Errorf("background fit: %w", err))
		}
		next.models = make([]*polyfit.Model, n)
		next.trials = make([][]selection.Trial, n)
		for c, r := range results {
			next.models[c] = r.Model
			next.trials[c] = r.Trials
		}
		metrics.RecordRefit(time.Since(start), n)
	}

	if next.source != nil {
		if rebuildObserved || next.observed == nil {
			obs, err := a.builder.Observed(next.source)
			if err != nil {
				return a.reject(ctx, kind, fmt.Errorf("observed spectrum: %w", err))
			}
			next.observed = &obs
		}
		next.backgroundPHA = nil
		if next.models != nil {
			bkg, err := a.builder.Background(next.models, next.source)
			if err != nil {
				return a.reject(ctx, kind, fmt.Errorf("background spectrum: %w", err))
			}
			next.backgroundPHA = &bkg
		}
	}

	a.current.Store(&next)
	metrics.RecordSelectionChange(kind)

	fields := []logger.Field{
		logger.String("kind", kind),
		logger.String("order", next.order.String()),
		logger.Duration("took", time.Since(start)),
	}
	if next.source != nil {
		fields = append(fields, logger.String("source_interval", next.source.String()))
	}
	if next.background != nil {
		fields = append(fields, logger.String("background_intervals", next.background.String()))
	}
	if next.models != nil {
		fields = append(fields, logger.Any("orders", selectedOrders(next.models)))
	}
	a.logger.Info(ctx, "selection applied", fields...)

	return nil
}

func (a *Analysis) reject(ctx context.Context, kind string, err error) error {
	metrics.RecordSelectionRejected(kind)
	metrics.RecordErrorByComponent("analysis", kind)
	a.logger.Warn(ctx, "selection rejected", logger.String("kind", kind), logger.Error(err))
	return err
}

func parseSource(specs ...string) (*interval.Set, error) {
	src, err := interval.Parse(specs...)
	if err != nil {
		return nil, err
	}
	if src.Len() != 1 {
		return nil, fmt.Errorf("%w: got %s", ErrMultipleSourceIntervals, src)
	}
	return src, nil
}

func selectedOrders(models []*polyfit.Model) []int {
	out := make([]int, len(models))
	for c, m := range models {
		out[c] = m.Order
	}
	return out
}

func clonePHA(p model.PHA) model.PHA {
	out := p
	out.Counts = append([]float64(nil), p.Counts...)
	if p.CountErrors != nil {
		out.CountErrors = append([]float64(nil), p.CountErrors...)
	}
	return out
}

// LightCurve bins all channels over [start, stop) with bins of dt seconds.
// With background models present every bin also carries the summed model
// rate.
func (a *Analysis) LightCurve(start, stop, dt float64) (model.LightCurve, error) {
	span, err := interval.Single(start, stop)
	if err != nil {
		return model.LightCurve{}, err
	}
	bins, err := binning.Bins(a.store, span, binning.AllChannels, dt)
	if err != nil {
		return model.LightCurve{}, err
	}

	s := a.current.Load()
	lc := model.LightCurve{Bins: make([]model.LightCurveBin, len(bins))}
	for i, b := range bins {
		lcb := model.LightCurveBin{
			Start:  b.Start,
			Stop:   b.Stop,
			Counts: b.Counts,
			Rate:   float64(b.Counts) / b.Duration(),
		}
		for _, m := range s.models {
			lcb.BackgroundRate += m.Integral(b.Start, b.Stop) / b.Duration()
		}
		lc.Bins[i] = lcb
	}
	if s.source != nil {
		lc.Source = s.source.Intervals()
	}
	if s.background != nil {
		lc.Background = s.background.Intervals()
	}
	return lc, nil
}

// Summary describes the event list and the current selections.
func (a *Analysis) Summary() model.Summary {
	s := a.current.Load()
	first, last := a.store.Span()
	wStart, wStop := a.store.Window()

	sum := model.Summary{
		Events:       a.store.Len(),
		Channels:     a.store.NumChannels(),
		FirstEvent:   first,
		LastEvent:    last,
		WindowStart:  wStart,
		WindowStop:   wStop,
		Reference:    a.reference,
		RefDefaulted: a.refDefaulted,
		OrderSetting: s.order.String(),
	}
	sum.TotalDeadTime = a.store.DeadTimeRange(first, math.Nextafter(last, math.Inf(1)))
	if s.source != nil {
		sum.Source = s.source.Intervals()
	}
	if s.background != nil {
		sum.Background = s.background.Intervals()
	}
	if s.models != nil {
		sum.SelectedOrders = selectedOrders(s.models)
	}
	return sum
}
