package identity

import "errors"

// ErrNotFound is returned by a store when a preference key has no value.
var ErrNotFound = errors.New("preference not found")
