package repository

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/model"
	"github.com/okian/spectre/pkg/metrics"
)

// EventStore is the sorted, immutable event list.
//
// Events are stably sorted by arrival time at construction. Besides the
// sorted columns the store keeps a per-channel time index and a prefix sum of
// dead time, so counts and dead time over a range cost two binary searches.
type EventStore struct {
	times     []float64
	channels  []int
	deadTimes []float64

	// deadPrefix[i] is the summed dead time of events [0, i).
	deadPrefix []float64
	// byChannel[c] holds the sorted arrival times of channel c.
	byChannel [][]float64

	nChannels int

	windowStart float64
	windowStop  float64
	hasWindow   bool
}

var _ Store = (*EventStore)(nil)

// New builds an EventStore from events. Input order is arbitrary.
func New(events []model.Event, nChannels int, opts ...Option) (*EventStore, error) {
	if len(events) == 0 {
		return nil, ErrEmptyDataset
	}
	if nChannels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, nChannels)
	}

	for i, e := range events {
		if err := validate(e, nChannels); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	s := &EventStore{
		times:      make([]float64, len(sorted)),
		channels:   make([]int, len(sorted)),
		deadTimes:  make([]float64, len(sorted)),
		deadPrefix: make([]float64, len(sorted)+1),
		byChannel:  make([][]float64, nChannels),
		nChannels:  nChannels,
	}

	for i, e := range sorted {
		s.times[i] = e.Time
		s.channels[i] = e.Channel
		s.deadTimes[i] = e.DeadTime
		s.deadPrefix[i+1] = s.deadPrefix[i] + e.DeadTime
		s.byChannel[e.Channel] = append(s.byChannel[e.Channel], e.Time)
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.hasWindow && !(s.windowStart < s.windowStop) {
		return nil, fmt.Errorf("%w: [%g, %g)", ErrInvalidWindow, s.windowStart, s.windowStop)
	}

	metrics.RecordStoreBuilt(len(sorted), nChannels)
	return s, nil
}

// FromArrays builds an EventStore from parallel arrays of arrival times,
// channel indices and per-event dead times.
func FromArrays(times []float64, channels []int, deadTimes []float64, nChannels int, opts ...Option) (*EventStore, error) {
	if len(times) != len(channels) || len(times) != len(deadTimes) {
		return nil, fmt.Errorf("%w: %d times, %d channels, %d dead times",
			ErrLengthMismatch, len(times), len(channels), len(deadTimes))
	}

	events := make([]model.Event, len(times))
	for i := range times {
		events[i] = model.Event{Time: times[i], Channel: channels[i], DeadTime: deadTimes[i]}
	}
	return New(events, nChannels, opts...)
}

func validate(e model.Event, nChannels int) error {
	if math.IsNaN(e.Time) || math.IsInf(e.Time, 0) {
		return fmt.Errorf("%w: non-finite arrival time", ErrInvalidEvent)
	}
	if e.Channel < 0 || e.Channel >= nChannels {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrChannelOutOfRange, e.Channel, nChannels)
	}
	if !(e.DeadTime >= 0) || math.IsInf(e.DeadTime, 0) {
		return fmt.Errorf("%w: dead time %g", ErrInvalidEvent, e.DeadTime)
	}
	return nil
}

// Len returns the number of events.
func (s *EventStore) Len() int { return len(s.times) }

// NumChannels returns the fixed channel count.
func (s *EventStore) NumChannels() int { return s.nChannels }

// Span returns the first and last arrival time.
func (s *EventStore) Span() (float64, float64) {
	return s.times[0], s.times[len(s.times)-1]
}

// Window returns the observation window, or the event span when none was set.
func (s *EventStore) Window() (float64, float64) {
	if s.hasWindow {
		return s.windowStart, s.windowStop
	}
	return s.Span()
}

// bounds returns the index range [i, j) of events with lo <= t < hi.
func (s *EventStore) bounds(lo, hi float64) (int, int) {
	i := sort.SearchFloat64s(s.times, lo)
	j := sort.SearchFloat64s(s.times, hi)
	return i, j
}

// EventsIn returns the events inside any member of set, in time order.
func (s *EventStore) EventsIn(set *interval.Set) []model.Event {
	var out []model.Event
	for _, iv := range set.Intervals() {
		i, j := s.bounds(iv.Start, iv.Stop)
		for k := i; k < j; k++ {
			out = append(out, model.Event{Time: s.times[k], Channel: s.channels[k], DeadTime: s.deadTimes[k]})
		}
	}
	return out
}

// TotalDeadTime sums the dead time of the events inside set.
func (s *EventStore) TotalDeadTime(set *interval.Set) float64 {
	var total float64
	for _, iv := range set.Intervals() {
		total += s.DeadTimeRange(iv.Start, iv.Stop)
	}
	return total
}

// CountIn counts events of channel inside set.
func (s *EventStore) CountIn(set *interval.Set, channel int) int {
	var n int
	for _, iv := range set.Intervals() {
		n += s.CountRange(iv.Start, iv.Stop, channel)
	}
	return n
}

// CountRange counts events of channel in [lo, hi). Unknown channels count zero.
func (s *EventStore) CountRange(lo, hi float64, channel int) int {
	if !(lo < hi) {
		return 0
	}
	if channel == AllChannels {
		i, j := s.bounds(lo, hi)
		return j - i
	}
	if channel < 0 || channel >= s.nChannels {
		return 0
	}
	times := s.byChannel[channel]
	return sort.SearchFloat64s(times, hi) - sort.SearchFloat64s(times, lo)
}

// DeadTimeRange sums the dead time of all events in [lo, hi).
func (s *EventStore) DeadTimeRange(lo, hi float64) float64 {
	if !(lo < hi) {
		return 0
	}
	i, j := s.bounds(lo, hi)
	return s.deadPrefix[j] - s.deadPrefix[i]
}
