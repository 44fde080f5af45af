package interval

import "errors"

// Sentinel kinds for interval errors.
var (
	ErrInvalidInterval     = errors.New("invalid interval")
	ErrOverlappingInterval = errors.New("overlapping intervals")
)
