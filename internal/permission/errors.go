package permission

import "errors"

var (
	// ErrQueryFailed marks a permission query the host could not answer.
	// The negotiator converts it to "not granted" and a warning.
	ErrQueryFailed = errors.New("permission query failed")

	// ErrUnsupported is returned by sources that cannot perform an action,
	// such as opening a settings screen on a headless host.
	ErrUnsupported = errors.New("not supported by this host")
)
