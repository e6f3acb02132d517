package android

import "errors"

var (
	// ErrCommandFailed is returned when a shell tool exits non-zero or
	// reports an error in its output.
	ErrCommandFailed = errors.New("android command failed")

	// ErrBadComponent is returned for an unparseable component name.
	ErrBadComponent = errors.New("invalid component name")
)
