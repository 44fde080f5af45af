package service

import (
	"github.com/okian/spectre/internal/domain/selection"
	"github.com/okian/spectre/pkg/logger"
)

// Option applies a configuration option to the Analysis.
type Option func(*Analysis)

// WithWorkerCount sets the number of fit worker goroutines.
func WithWorkerCount(count int) Option {
	return func(a *Analysis) {
		if count > 0 {
			a.workerCount = count
		}
	}
}

// WithBinWidth sets the width in seconds of the background fit bins.
func WithBinWidth(w float64) Option {
	return func(a *Analysis) {
		if w > 0 {
			a.binWidth = w
		}
	}
}

// WithMaxOrder caps the orders tried by automatic selection.
func WithMaxOrder(n int) Option {
	return func(a *Analysis) {
		if n >= 0 && n <= selection.MaxSupportedOrder {
			a.maxOrder = n
		}
	}
}

// WithSignificance sets the test size of the order selection.
func WithSignificance(alpha float64) Option {
	return func(a *Analysis) {
		if alpha > 0 && alpha < 1 {
			a.significance = alpha
		}
	}
}

// WithOrder sets the initial background order.
func WithOrder(o selection.Order) Option {
	return func(a *Analysis) {
		if o.Validate() == nil {
			a.initialOrder = o
		}
	}
}

// WithReference records the trigger time event times are relative to.
func WithReference(t float64, defaulted bool) Option {
	return func(a *Analysis) {
		a.reference = t
		a.refDefaulted = defaulted
	}
}

// WithLogger sets a custom logger for the analysis.
func WithLogger(logger logger.Logger) Option {
	return func(a *Analysis) {
		if logger != nil {
			a.logger = logger
		}
	}
}
