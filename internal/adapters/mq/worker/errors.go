package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrStopped    = errors.New("worker stopped")
	ErrNotStarted = errors.New("worker pool not started")
)
