// Package model contains domain models passed between layers.
package model

// Event is a single time-tagged detector event.
type Event struct {
	Time     float64 // arrival time in seconds relative to the reference epoch
	Channel  int     // energy channel index in [0, n_channels)
	DeadTime float64 // instrument dead time charged to this event, seconds
}

// Interval is a half-open time range [Start, Stop).
type Interval struct {
	Start float64
	Stop  float64
}

// Duration returns Stop-Start.
func (i Interval) Duration() float64 { return i.Stop - i.Start }

// Contains reports whether t lies in [Start, Stop).
func (i Interval) Contains(t float64) bool { return t >= i.Start && t < i.Stop }
