package lifecycle

import "errors"

var (
	// ErrNotImplemented is returned for command methods this core does not handle.
	ErrNotImplemented = errors.New("method not implemented")

	// ErrBadArguments is returned when a command's arguments cannot be decoded.
	ErrBadArguments = errors.New("invalid command arguments")
)
