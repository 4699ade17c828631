package fleet

import "errors"

var (
	// ErrNotFound is returned by every per-machine operation for an unknown id.
	ErrNotFound = errors.New("machine not found")
	// ErrInvalidPin marks a rejected activation. It never leaves the package;
	// callers only see ValidateAndActivate return false.
	ErrInvalidPin = errors.New("invalid or expired pin")
	// ErrInvalidArgument is returned for out-of-range control values.
	ErrInvalidArgument = errors.New("invalid argument")
)
