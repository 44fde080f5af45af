package ingest

// Dead times per event from Meegan et al. (2009).
const (
	DefaultDeadTimeNormal   = 2e-6
	DefaultDeadTimeOverflow = 10e-6
)

// Option applies a configuration option to a read.
type Option func(*options)

type options struct {
	nChannels        int
	deadTimeNormal   float64
	deadTimeOverflow float64
	triggerTime      *float64
}

func newOptions(opts []Option) options {
	o := options{
		deadTimeNormal:   DefaultDeadTimeNormal,
		deadTimeOverflow: DefaultDeadTimeOverflow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithChannels sets the detector channel count. Without it the count is one
// more than the highest channel seen.
func WithChannels(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.nChannels = n
		}
	}
}

// WithDeadTimes sets the dead time charged to normal and overflow events
// when the input has no dead time column.
func WithDeadTimes(normal, overflow float64) Option {
	return func(o *options) {
		if normal >= 0 {
			o.deadTimeNormal = normal
		}
		if overflow >= 0 {
			o.deadTimeOverflow = overflow
		}
	}
}

// WithTriggerTime overrides the reference epoch found in the input.
func WithTriggerTime(t float64) Option {
	return func(o *options) {
		o.triggerTime = &t
	}
}
