package synth

import "errors"

// ErrInvalidConfig is returned when a generator configuration is unusable.
var ErrInvalidConfig = errors.New("invalid synth config")
