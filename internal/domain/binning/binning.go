// Package binning turns an event list into per-channel counts and live-time
// exposure over interval selections.
package binning

import (
	"fmt"
	"math"

	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/model"
)

// AllChannels selects every channel.
const AllChannels = -1

// Events is the read side of an event list that binning needs.
type Events interface {
	CountIn(set *interval.Set, channel int) int
	TotalDeadTime(set *interval.Set) float64
	CountRange(lo, hi float64, channel int) int
	DeadTimeRange(lo, hi float64) float64
}

// Bin is a time bin with its event count and live time.
type Bin struct {
	Start    float64
	Stop     float64
	Counts   int
	Exposure float64
}

// Duration returns the bin length.
func (b Bin) Duration() float64 { return b.Stop - b.Start }

// LiveFraction returns Exposure/Duration.
func (b Bin) LiveFraction() float64 { return b.Exposure / b.Duration() }

// Bins cuts every member of set into bins of width seconds and counts the
// events of channel (or AllChannels) in each. Bins never straddle a member
// boundary: the last bin of a member is truncated at its stop.
func Bins(events Events, set *interval.Set, channel int, width float64) ([]Bin, error) {
	if !(width > 0) || math.IsInf(width, 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidBinWidth, width)
	}

	var out []Bin
	for _, iv := range set.Intervals() {
		n := int(math.Ceil(iv.Duration() / width))
		if n > 1 && iv.Start+float64(n-1)*width >= iv.Stop {
			n--
		}
		for k := 0; k < n; k++ {
			lo := iv.Start + float64(k)*width
			hi := math.Min(iv.Start+float64(k+1)*width, iv.Stop)
			if k == n-1 {
				hi = iv.Stop
			}
			out = append(out, Bin{
				Start:    lo,
				Stop:     hi,
				Counts:   events.CountRange(lo, hi, channel),
				Exposure: (hi - lo) - events.DeadTimeRange(lo, hi),
			})
		}
	}
	return out, nil
}

// BinCounts returns the bin ranges and counts of Bins, for light curves.
func BinCounts(events Events, set *interval.Set, channel int, width float64) ([]model.Interval, []int, error) {
	bins, err := Bins(events, set, channel, width)
	if err != nil {
		return nil, nil, err
	}
	edges := make([]model.Interval, len(bins))
	counts := make([]int, len(bins))
	for i, b := range bins {
		edges[i] = model.Interval{Start: b.Start, Stop: b.Stop}
		counts[i] = b.Counts
	}
	return edges, counts, nil
}

// RawCount returns the unbinned number of channel events inside set.
func RawCount(events Events, set *interval.Set, channel int) int {
	return events.CountIn(set, channel)
}

// Exposure returns the live time of set: its duration minus the dead time of
// the events it contains. A non-positive result is a data-quality fault and is
// reported rather than clamped.
func Exposure(events Events, set *interval.Set) (float64, error) {
	exposure := set.Duration() - events.TotalDeadTime(set)
	if !(exposure > 0) {
		return 0, fmt.Errorf("%w: %g s over %s", ErrNegativeExposure, exposure, set)
	}
	return exposure, nil
}
