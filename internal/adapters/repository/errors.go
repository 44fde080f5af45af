package repository

import "errors"

// Sentinel kinds for event store errors.
var (
	ErrEmptyDataset        = errors.New("empty dataset")
	ErrInvalidChannelCount = errors.New("invalid channel count")
	ErrChannelOutOfRange   = errors.New("channel out of range")
	ErrInvalidEvent        = errors.New("invalid event")
	ErrLengthMismatch      = errors.New("event arrays differ in length")
	ErrInvalidWindow       = errors.New("invalid observation window")
)
