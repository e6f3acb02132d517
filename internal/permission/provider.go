package permission

import "fmt"

// PrivilegeProvider describes who, if anyone, can grant permissions on this
// device. The negotiator only uses it to word remediation hints; it never
// exercises the authority itself.
type PrivilegeProvider interface {
	Name() string
	Managed() bool
	Hints(capability, pkg string) []string
}

// ObserveOnly is the provider for unmanaged devices: the user has to act.
type ObserveOnly struct{}

func (ObserveOnly) Name() string  { return "observe-only" }
func (ObserveOnly) Managed() bool { return false }

// Hints points the user at the relevant settings screen.
func (ObserveOnly) Hints(capability, pkg string) []string {
	switch capability {
	case PowerExemption:
		return []string{fmt.Sprintf("exempt %s from battery optimization in system settings", pkg)}
	default:
		return []string{fmt.Sprintf("grant %s to %s in the app's permission settings", capability, pkg)}
	}
}

// Privileged is the provider for devices enrolled in a device-management
// product that provisions grants at install time.
type Privileged struct {
	Authority string
}

func (p Privileged) Name() string  { return p.Authority }
func (p Privileged) Managed() bool { return true }

// Hints names the console action and the adb fallback.
func (p Privileged) Hints(capability, pkg string) []string {
	switch capability {
	case PowerExemption:
		return []string{
			fmt.Sprintf("in the %s console, add to whitelist: REQUEST_IGNORE_BATTERY_OPTIMIZATIONS", p.Authority),
			fmt.Sprintf("or use adb: adb shell dumpsys deviceidle whitelist +%s", pkg),
		}
	default:
		return []string{
			fmt.Sprintf("install via %s with %s declared and grant it as device owner", p.Authority, capability),
		}
	}
}
