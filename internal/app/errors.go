package service

import "errors"

// Sentinel kinds for analysis errors.
var (
	ErrNotStarted              = errors.New("analysis not started")
	ErrMultipleSourceIntervals = errors.New("only one source interval is supported")
	ErrNoSourceInterval        = errors.New("no source interval selected")
	ErrNoBackgroundInterval    = errors.New("no background interval selected")
)
