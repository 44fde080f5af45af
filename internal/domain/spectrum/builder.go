// Package spectrum builds observed and background count spectra over a
// source selection.
package spectrum

import (
	"fmt"

	"github.com/okian/spectre/internal/domain/binning"
	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/model"
	"github.com/okian/spectre/internal/domain/polyfit"
	"github.com/okian/spectre/pkg/metrics"
)

// Events is the event list a Builder reads.
type Events interface {
	binning.Events
	NumChannels() int
}

// Builder produces PHA containers. It holds no state besides the event list,
// so repeated calls with the same inputs give identical results.
type Builder struct {
	events Events
}

// NewBuilder creates a builder over events.
func NewBuilder(events Events) *Builder {
	return &Builder{events: events}
}

// Observed counts every channel over source. Exposure is the live time of
// source.
func (b *Builder) Observed(source *interval.Set) (model.PHA, error) {
	exposure, err := binning.Exposure(b.events, source)
	if err != nil {
		return model.PHA{}, err
	}

	n := b.events.NumChannels()
	counts := make([]float64, n)
	for c := range counts {
		counts[c] = float64(binning.RawCount(b.events, source, c))
	}

	metrics.RecordSpectrumBuilt("observed")
	return model.PHA{
		Counts:       counts,
		Exposure:     exposure,
		ChannelCount: n,
		IsPoisson:    true,
	}, nil
}

// Background predicts the counts of every channel over source from its
// fitted model. Each channel sums the model integral over every member of
// source, scaled by the live fraction of source, and carries the 1-sigma
// model uncertainty. Exposure equals that of Observed for the same source.
func (b *Builder) Background(models []*polyfit.Model, source *interval.Set) (model.PHA, error) {
	n := b.events.NumChannels()
	if len(models) != n {
		return model.PHA{}, fmt.Errorf("%w: %d models for %d channels", ErrChannelMismatch, len(models), n)
	}

	exposure, err := binning.Exposure(b.events, source)
	if err != nil {
		return model.PHA{}, err
	}
	live := exposure / source.Duration()

	counts := make([]float64, n)
	errs := make([]float64, n)
	for c, m := range models {
		if m == nil {
			return model.PHA{}, fmt.Errorf("%w: channel %d", ErrMissingModel, c)
		}
		val, sigma := m.IntegralOver(source)
		counts[c] = val * live
		errs[c] = sigma * live
	}

	metrics.RecordSpectrumBuilt("background")
	return model.PHA{
		Counts:       counts,
		CountErrors:  errs,
		Exposure:     exposure,
		ChannelCount: n,
		IsPoisson:    false,
	}, nil
}
