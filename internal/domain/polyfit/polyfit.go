// Package polyfit fits a per-channel polynomial count rate to background
// intervals by binned Poisson maximum likelihood.
//
// The expected counts in a bin are the polynomial integrated over the bin and
// scaled by the bin's live fraction, so the model is linear in the
// coefficients. The maximum is found by Fisher scoring with step halving,
// which keeps every expected count positive and the likelihood non-decreasing.
// The polynomial is expressed in u = (t - Center) / Scale with u in [-1, 1]
// over the fit selection.
package polyfit

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/spectre/internal/domain/binning"
	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/pkg/metrics"
)

// Data is the binned input of one channel over a background selection. It is
// built once and fitted at several orders.
type Data struct {
	channel int
	set     *interval.Set
	center  float64
	scale   float64

	starts []float64
	stops  []float64
	live   []float64 // live fraction per bin
	counts []float64

	total        float64
	exposure     float64
	logFactorial float64

	opts options
}

// NewData bins channel events over set. Bins without live time carry no
// information and are dropped.
func NewData(events binning.Events, set *interval.Set, channel int, opts ...Option) (*Data, error) {
	o := newOptions(opts)
	bins, err := binning.Bins(events, set, channel, o.binWidth)
	if err != nil {
		return nil, err
	}

	lo, hi := set.Bounds()
	d := &Data{
		channel: channel,
		set:     set,
		center:  (lo + hi) / 2,
		scale:   (hi - lo) / 2,
		opts:    o,
	}
	for _, b := range bins {
		if !(b.Exposure > 0) {
			continue
		}
		y := float64(b.Counts)
		d.starts = append(d.starts, b.Start)
		d.stops = append(d.stops, b.Stop)
		d.live = append(d.live, b.LiveFraction())
		d.counts = append(d.counts, y)
		d.exposure += b.Exposure
		lg, _ := math.Lgamma(y + 1)
		d.logFactorial += lg
	}
	d.total = floats.Sum(d.counts)
	return d, nil
}

// Channel returns the channel the data was binned for.
func (d *Data) Channel() int { return d.channel }

// NumBins returns the number of bins entering the likelihood.
func (d *Data) NumBins() int { return len(d.counts) }

// MaxOrder returns the highest order with at least one degree of freedom,
// or -1 when not even a constant can be fitted.
func (d *Data) MaxOrder() int { return len(d.counts) - 2 }

// design returns the bin-by-coefficient matrix of expected counts per unit
// coefficient.
func (d *Data) design(p int) [][]float64 {
	x := make([][]float64, len(d.counts))
	for i := range x {
		x[i] = basis(d.starts[i], d.stops[i], d.center, d.scale, p)
		floats.Scale(d.live[i], x[i])
	}
	return x
}

// logLikelihood fills mu with the expected counts for coef and returns the
// Poisson log-likelihood. It reports false when any expected count is not
// positive.
func (d *Data) logLikelihood(x [][]float64, coef, mu []float64) (float64, bool) {
	l := -d.logFactorial
	for i, xi := range x {
		m := floats.Dot(xi, coef)
		if !(m > 0) || math.IsInf(m, 0) {
			return math.Inf(-1), false
		}
		mu[i] = m
		l += d.counts[i]*math.Log(m) - m
	}
	return l, true
}

// fisher returns the Fisher information and the score at mu.
func (d *Data) fisher(x [][]float64, mu []float64, p int) (*mat.SymDense, *mat.VecDense) {
	info := mat.NewSymDense(p, nil)
	score := mat.NewVecDense(p, nil)
	for i, xi := range x {
		w := 1 / mu[i]
		r := d.counts[i]/mu[i] - 1
		for j := 0; j < p; j++ {
			score.SetVec(j, score.AtVec(j)+r*xi[j])
			for k := j; k < p; k++ {
				info.SetSym(j, k, info.At(j, k)+w*xi[j]*xi[k])
			}
		}
	}
	return info, score
}

// Fit bins channel events over set and fits a polynomial of the given order.
func Fit(events binning.Events, set *interval.Set, channel, order int, opts ...Option) (*Model, error) {
	d, err := NewData(events, set, channel, opts...)
	if err != nil {
		return nil, err
	}
	return d.Fit(order)
}

// Fit maximises the likelihood for a polynomial of the given order.
func (d *Data) Fit(order int) (*Model, error) {
	start := time.Now()

	if order < 0 {
		metrics.RecordFitError("invalid_order")
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrder, order)
	}
	dof := d.NumBins() - order - 1
	if dof <= 0 {
		metrics.RecordFitError("insufficient_data")
		return nil, fmt.Errorf("%w: channel %d order %d with %d bins", ErrInsufficientData, d.channel, order, d.NumBins())
	}

	p := order + 1
	m := &Model{
		Channel:      d.channel,
		Order:        order,
		Coefficients: make([]float64, p),
		DOF:          dof,
		NumBins:      d.NumBins(),
		FitSet:       d.set,
		Center:       d.center,
		Scale:        d.scale,
	}

	// No events: the maximum sits at the zero rate.
	if d.total == 0 {
		m.Covariance = mat.NewSymDense(p, nil)
		m.LogLikelihood = -d.logFactorial
		metrics.RecordFit(order, time.Since(start), 0)
		return m, nil
	}

	x := d.design(p)
	coef := m.Coefficients
	coef[0] = d.total / d.exposure

	mu := make([]float64, len(x))
	trialMu := make([]float64, len(x))
	trial := make([]float64, p)

	logL, _ := d.logLikelihood(x, coef, mu)

	var iter int
	for iter < d.opts.maxIterations {
		iter++

		info, score := d.fisher(x, mu, p)
		var chol mat.Cholesky
		if ok := chol.Factorize(info); !ok {
			metrics.RecordFitError("singular")
			return nil, fmt.Errorf("%w: channel %d order %d", ErrSingularFit, d.channel, order)
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, score); err != nil {
			metrics.RecordFitError("singular")
			return nil, fmt.Errorf("%w: channel %d order %d: %w", ErrSingularFit, d.channel, order, err)
		}

		accepted := false
		next := logL
		for lambda := 1.0; lambda > 1e-12; lambda /= 2 {
			for k := range trial {
				trial[k] = coef[k] + lambda*step.AtVec(k)
			}
			l, ok := d.logLikelihood(x, trial, trialMu)
			if ok && l >= logL {
				accepted, next = true, l
				break
			}
		}
		if !accepted {
			break
		}

		copy(coef, trial)
		copy(mu, trialMu)
		gain := next - logL
		logL = next
		if gain <= d.opts.tolerance*(1+math.Abs(logL)) {
			break
		}
	}

	info, _ := d.fisher(x, mu, p)
	var chol mat.Cholesky
	if ok := chol.Factorize(info); !ok {
		metrics.RecordFitError("singular")
		return nil, fmt.Errorf("%w: channel %d order %d", ErrSingularFit, d.channel, order)
	}
	cov := mat.NewSymDense(p, nil)
	if err := chol.InverseTo(cov); err != nil {
		metrics.RecordFitError("singular")
		return nil, fmt.Errorf("%w: channel %d order %d: %w", ErrSingularFit, d.channel, order, err)
	}

	m.Covariance = cov
	m.LogLikelihood = logL
	m.Iterations = iter
	metrics.RecordFit(order, time.Since(start), iter)
	return m, nil
}

// basis returns the integral of u^k dt over [t0, t1] for k < p.
func basis(t0, t1, center, scale float64, p int) []float64 {
	u0 := (t0 - center) / scale
	u1 := (t1 - center) / scale
	out := make([]float64, p)
	pow0, pow1 := u0, u1
	for k := 0; k < p; k++ {
		out[k] = scale * (pow1 - pow0) / float64(k+1)
		pow0 *= u0
		pow1 *= u1
	}
	return out
}
