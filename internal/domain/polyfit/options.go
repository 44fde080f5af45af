package polyfit

const (
	defaultBinWidth      = 1.0
	defaultMaxIterations = 100
	defaultTolerance     = 1e-9
)

// Option configures a fit.
type Option func(*options)

type options struct {
	binWidth      float64
	maxIterations int
	tolerance     float64
}

func newOptions(opts []Option) options {
	o := options{
		binWidth:      defaultBinWidth,
		maxIterations: defaultMaxIterations,
		tolerance:     defaultTolerance,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithBinWidth sets the width in seconds of the bins the likelihood is
// evaluated on.
func WithBinWidth(w float64) Option {
	return func(o *options) {
		if w > 0 {
			o.binWidth = w
		}
	}
}

// WithMaxIterations caps the Fisher scoring iterations.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithTolerance sets the relative log-likelihood change at which the
// iteration stops.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		if tol > 0 {
			o.tolerance = tol
		}
	}
}
