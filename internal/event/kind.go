package event

import (
	"fmt"
	"strings"
)

// Kind is a system-level signal delivered by the host.
type Kind string

// Broadcast kinds, delivered to any interested party.
const (
	KindDeviceStarted    Kind = "device_started"
	KindPackageUpdated   Kind = "package_updated"
	KindProcessRestarted Kind = "process_restarted"
)

// Lifecycle kinds, delivered on the supervisor's own handle.
const (
	KindTaskRemoved         Kind = "task_removed"
	KindSupervisorDestroyed Kind = "supervisor_destroyed"
)

// Reasons passed to EnsureRunning that do not originate from a SystemEvent.
const (
	ReasonHostActivation      = "host_activation"
	ReasonSupervisorRecreated = "supervisor_recreated"
)

// androidActions maps Android broadcast intent actions onto kinds.
var androidActions = map[string]Kind{
	"android.intent.action.BOOT_COMPLETED":      KindDeviceStarted,
	"android.intent.action.MY_PACKAGE_REPLACED": KindPackageUpdated,
	"android.intent.action.PACKAGE_RESTARTED":   KindProcessRestarted,
}

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindDeviceStarted,
		KindPackageUpdated,
		KindProcessRestarted,
		KindTaskRemoved,
		KindSupervisorDestroyed,
	}
}

// ParseKind accepts a canonical kind name or an Android intent action.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if k, ok := androidActions[s]; ok {
		return k, nil
	}
	k := Kind(strings.ToLower(s))
	if k.Valid() {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDeviceStarted, KindPackageUpdated, KindProcessRestarted,
		KindTaskRemoved, KindSupervisorDestroyed:
		return true
	}
	return false
}

// IsBroadcast reports whether k is a system broadcast that only asks for
// the supervisor to be running.
func (k Kind) IsBroadcast() bool {
	switch k {
	case KindDeviceStarted, KindPackageUpdated, KindProcessRestarted:
		return true
	}
	return false
}
