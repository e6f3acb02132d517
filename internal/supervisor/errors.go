package supervisor

import "errors"

var (
	// ErrRelaunchFailed wraps any failure to issue a relaunch request.
	// It is logged and recorded, never retried locally.
	ErrRelaunchFailed = errors.New("relaunch request failed")

	// ErrBreakerOpen is returned by GuardedLauncher while the breaker rejects launches.
	ErrBreakerOpen = errors.New("relaunch breaker open")

	// ErrInstanceTerminated is returned from Service.Serve when the current
	// instance ended through task removal or host destruction, so the tree
	// recreates it.
	ErrInstanceTerminated = errors.New("supervisor instance terminated")
)
