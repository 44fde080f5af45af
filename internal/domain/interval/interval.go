// Package interval implements sets of disjoint half-open time intervals used
// for source and background selections.
package interval

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/spectre/internal/domain/model"
)

// Set is an immutable, ordered sequence of non-overlapping [start, stop)
// intervals. Members are kept sorted by start time.
type Set struct {
	intervals []model.Interval
}

// New validates intervals and builds a Set.
//
// Each interval needs start < stop with finite bounds. Members may touch
// (a.Stop == b.Start) but must not overlap; overlapping input is rejected
// rather than merged.
func New(intervals ...model.Interval) (*Set, error) {
	if len(intervals) == 0 {
		return nil, fmt.Errorf("%w: no intervals given", ErrInvalidInterval)
	}

	sorted := make([]model.Interval, len(intervals))
	copy(sorted, intervals)

	for _, iv := range sorted {
		if math.IsNaN(iv.Start) || math.IsNaN(iv.Stop) || math.IsInf(iv.Start, 0) || math.IsInf(iv.Stop, 0) {
			return nil, fmt.Errorf("%w: non-finite bound in %s", ErrInvalidInterval, format(iv))
		}
		if iv.Start >= iv.Stop {
			return nil, fmt.Errorf("%w: start must be before stop in %s", ErrInvalidInterval, format(iv))
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].Stop {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingInterval, format(sorted[i-1]), format(sorted[i]))
		}
	}

	return &Set{intervals: sorted}, nil
}

// Single builds a one-member Set.
func Single(start, stop float64) (*Set, error) {
	return New(model.Interval{Start: start, Stop: stop})
}

// Intervals returns a copy of the members in time order.
func (s *Set) Intervals() []model.Interval {
	out := make([]model.Interval, len(s.intervals))
	copy(out, s.intervals)
	return out
}

// Len returns the number of member intervals.
func (s *Set) Len() int { return len(s.intervals) }

// Duration returns the summed length of all members.
func (s *Set) Duration() float64 {
	var d float64
	for _, iv := range s.intervals {
		d += iv.Duration()
	}
	return d
}

// Contains reports whether t falls in any member interval.
func (s *Set) Contains(t float64) bool {
	// first member whose stop is beyond t
	i := sort.Search(len(s.intervals), func(i int) bool { return s.intervals[i].Stop > t })
	return i < len(s.intervals) && s.intervals[i].Contains(t)
}

// Bounds returns the earliest start and the latest stop.
func (s *Set) Bounds() (float64, float64) {
	return s.intervals[0].Start, s.intervals[len(s.intervals)-1].Stop
}

// Equal reports whether both sets have identical members.
func (s *Set) Equal(o *Set) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.intervals) != len(o.intervals) {
		return false
	}
	for i := range s.intervals {
		if s.intervals[i] != o.intervals[i] {
			return false
		}
	}
	return true
}

// String renders the set in the "start-stop,start-stop" selection syntax.
func (s *Set) String() string {
	if s == nil {
		return ""
	}
	parts := make([]string, len(s.intervals))
	for i, iv := range s.intervals {
		parts[i] = format(iv)
	}
	return strings.Join(parts, ",")
}

func format(iv model.Interval) string {
	return strconv.FormatFloat(iv.Start, 'g', -1, 64) + "-" + strconv.FormatFloat(iv.Stop, 'g', -1, 64)
}
