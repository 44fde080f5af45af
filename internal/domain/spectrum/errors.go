package spectrum

import "errors"

// Sentinel kinds for spectrum errors.
var (
	ErrChannelMismatch = errors.New("model count does not match channel count")
	ErrMissingModel    = errors.New("missing background model")
)
