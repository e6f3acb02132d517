package mdm

import "errors"

// ErrNoIdentity is logged when connect is attempted without a usable device identity.
var ErrNoIdentity = errors.New("mdm: device identity unknown")
