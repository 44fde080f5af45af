package binning

import "errors"

// Sentinel kinds for binning errors.
var (
	ErrNegativeExposure = errors.New("non-positive exposure")
	ErrInvalidBinWidth  = errors.New("invalid bin width")
)
