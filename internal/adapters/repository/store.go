// Package repository holds the time-ordered, read-only event store.
package repository

import (
	"github.com/okian/spectre/internal/domain/interval"
	"github.com/okian/spectre/internal/domain/model"
)

// AllChannels selects events of every channel in channel-aware queries.
const AllChannels = -1

// Store provides read access to an immutable event list.
//
// All queries are pure in-memory computations and safe for concurrent use.
type Store interface {
	// Len returns the number of events.
	Len() int
	// NumChannels returns the fixed channel count.
	NumChannels() int

	// EventsIn returns the events inside any member of set, in time order.
	EventsIn(set *interval.Set) []model.Event
	// TotalDeadTime sums the dead time of the events inside set.
	TotalDeadTime(set *interval.Set) float64
	// CountIn counts events of channel (or AllChannels) inside set.
	CountIn(set *interval.Set, channel int) int

	// CountRange counts events of channel (or AllChannels) in [lo, hi).
	CountRange(lo, hi float64, channel int) int
	// DeadTimeRange sums the dead time of all events in [lo, hi).
	DeadTimeRange(lo, hi float64) float64

	// Span returns the first and last arrival time.
	Span() (float64, float64)
	// Window returns the observation window.
	Window() (float64, float64)
}
