package polyfit

import "errors"

// Sentinel kinds for fit errors.
var (
	ErrInsufficientData = errors.New("insufficient data for polynomial order")
	ErrSingularFit      = errors.New("singular fit")
	ErrInvalidOrder     = errors.New("invalid polynomial order")
)
