package ingest

import "errors"

// Sentinel kinds for ingest errors.
var (
	ErrMalformedRecord = errors.New("malformed event record")
	ErrMalformedHeader = errors.New("malformed header")
	ErrNoEvents        = errors.New("no events in input")
)
