package synth

import (
	"fmt"
	"math"
)

// Default generator settings.
const (
	DefaultStep             = 0.01
	DefaultDeadTimeNormal   = 2e-6
	DefaultDeadTimeOverflow = 10e-6
)

// Config describes a synthetic TTE observation.
//
// Background[c] holds the rate polynomial of channel c in counts per second,
// in powers of t: rate(t) = Σ Background[c][k] * t^k. Negative rates are
// treated as zero.
type Config struct {
	Start      float64
	Stop       float64
	Background [][]float64
	Pulse      *Pulse

	Step             float64 // sampling step in seconds
	DeadTimeNormal   float64
	DeadTimeOverflow float64 // charged to events in the last channel
	Seed             uint64
	Workers          int
}

// Pulse is a flat source excess added on top of the background.
type Pulse struct {
	Start float64
	Stop  float64
	Rates []float64 // per channel, counts per second
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Step <= 0 {
		out.Step = DefaultStep
	}
	if out.DeadTimeNormal == 0 {
		out.DeadTimeNormal = DefaultDeadTimeNormal
	}
	if out.DeadTimeOverflow == 0 {
		out.DeadTimeOverflow = DefaultDeadTimeOverflow
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	return out
}

func (c *Config) validate() error {
	if math.IsNaN(c.Start) || math.IsNaN(c.Stop) || !(c.Start < c.Stop) {
		return fmt.Errorf("%w: window [%g, %g)", ErrInvalidConfig, c.Start, c.Stop)
	}
	if len(c.Background) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidConfig)
	}
	if c.Pulse != nil {
		if !(c.Pulse.Start < c.Pulse.Stop) {
			return fmt.Errorf("%w: pulse [%g, %g)", ErrInvalidConfig, c.Pulse.Start, c.Pulse.Stop)
		}
		if len(c.Pulse.Rates) != len(c.Background) {
			return fmt.Errorf("%w: pulse has %d rates for %d channels", ErrInvalidConfig, len(c.Pulse.Rates), len(c.Background))
		}
	}
	return nil
}
