// Package selection chooses the background polynomial order per channel.
package selection

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/spectre/internal/domain/binning"
	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/polyfit"
	"github.com/okian/spectre/pkg/metrics"
)

// Default selector configuration.
const (
	defaultMaxOrder     = MaxSupportedOrder
	defaultSignificance = 0.05
	defaultBinWidth     = 1.0
)

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithMaxOrder caps the orders tested in automatic mode.
func WithMaxOrder(n int) Option {
	return func(s *Selector) {
		if n >= 0 && n <= MaxSupportedOrder {
			s.maxOrder = n
		}
	}
}

// WithSignificance sets the test size of the likelihood-ratio test.
func WithSignificance(alpha float64) Option {
	return func(s *Selector) {
		if alpha > 0 && alpha < 1 {
			s.significance = alpha
		}
	}
}

// WithBinWidth sets the fit bin width in seconds.
func WithBinWidth(w float64) Option {
	return func(s *Selector) {
		if w > 0 {
			s.binWidth = w
		}
	}
}

// Trial is one step of the automatic order search.
type Trial struct {
	Order         int
	LogLikelihood float64
	Statistic     float64 // 2 * (logL_order - logL_previous)
	PValue        float64
	Accepted      bool
}

// Result is the model chosen for a channel and the trials that led to it.
type Result struct {
	Model  *polyfit.Model
	Trials []Trial
}

// Selector fits background models and picks their order.
type Selector struct {
	maxOrder     int
	significance float64
	binWidth     float64
	chi2         distuv.ChiSquared
}

// NewSelector creates a selector with configuration options.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		maxOrder:     defaultMaxOrder,
		significance: defaultSignificance,
		binWidth:     defaultBinWidth,
		chi2:         distuv.ChiSquared{K: 1},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Significance returns the configured test size.
func (s *Selector) Significance() float64 { return s.significance }

// MaxOrder returns the highest order tested in automatic mode.
func (s *Selector) MaxOrder() int { return s.maxOrder }

// Fit dispatches on the order setting: Auto runs Select, anything else Pinned.
func (s *Selector) Fit(events binning.Events, set *interval.Set, channel int, order Order) (*Result, error) {
	if order.IsAuto() {
		return s.Select(events, set, channel)
	}
	return s.Pinned(events, set, channel, int(order))
}

// Select fits orders 0, 1, ... and keeps raising the order while the
// likelihood-ratio test against the previous order is significant. The search
// stops at the first non-significant step. Orders the data cannot support are
// never tried, so the result falls back to the highest supportable order.
func (s *Selector) Select(events binning.Events, set *interval.Set, channel int) (*Result, error) {
	d, err := polyfit.NewData(events, set, channel, polyfit.WithBinWidth(s.binWidth))
	if err != nil {
		return nil, err
	}

	best, err := d.Fit(0)
	if err != nil {
		return nil, err
	}
	res := &Result{Trials: []Trial{{Order: 0, LogLikelihood: best.LogLikelihood, Accepted: true}}}

	limit := min(s.maxOrder, d.MaxOrder())
	for k := 1; k <= limit; k++ {
		next, err := d.Fit(k)
		if errors.Is(err, polyfit.ErrSingularFit) {
			break
		}
		if err != nil {
			return nil, err
		}

		stat := max(0, 2*(next.LogLikelihood-best.LogLikelihood))
		p := s.chi2.Survival(stat)
		metrics.RecordLRT()

		accepted := p < s.significance
		res.Trials = append(res.Trials, Trial{
			Order:         k,
			LogLikelihood: next.LogLikelihood,
			Statistic:     stat,
			PValue:        p,
			Accepted:      accepted,
		})
		if !accepted {
			break
		}
		best = next
	}

	res.Model = best
	metrics.RecordOrderSelected(best.Order, "auto")
	return res, nil
}

// Pinned fits exactly the given order. An order the data cannot support is an
// error, not a fallback.
func (s *Selector) Pinned(events binning.Events, set *interval.Set, channel, order int) (*Result, error) {
	if err := Order(order).Validate(); err != nil || order == int(Auto) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrder, order)
	}
	m, err := polyfit.Fit(events, set, channel, order, polyfit.WithBinWidth(s.binWidth))
	if err != nil {
		return nil, err
	}
	metrics.RecordOrderSelected(m.Order, "pinned")
	return &Result{
		Model:  m,
		Trials: []Trial{{Order: order, LogLikelihood: m.LogLikelihood, Accepted: true}},
	}, nil
}
