package repository

// Option applies a configuration option to the EventStore.
type Option func(*EventStore)

// WithObservationWindow records the instrument's observation bounds. When
// unset the window is the span of the recorded events.
func WithObservationWindow(start, stop float64) Option {
	return func(s *EventStore) {
		s.windowStart = start
		s.windowStop = stop
		s.hasWindow = true
	}
}
