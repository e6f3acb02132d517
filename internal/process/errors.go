package process

import "errors"

var (
	// ErrUnknownTarget is returned when a launch names a target with no configured command.
	ErrUnknownTarget = errors.New("unknown launch target")

	// ErrAlreadyRunning is returned by Claim when another live instance holds the role.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrLaunch wraps host failures to start a process.
	ErrLaunch = errors.New("launch failed")
)
