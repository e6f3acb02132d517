package event

import "errors"

var (
	// ErrUnknownKind is returned when a signal name maps to no known kind.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrBusClosed is returned when publishing on a closed bus.
	ErrBusClosed = errors.New("event bus closed")
)
