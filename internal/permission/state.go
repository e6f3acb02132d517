package permission

// Capabilities checked by the negotiator, named as the Android runtime does.
const (
	FineLocation       = "android.permission.ACCESS_FINE_LOCATION"
	BackgroundLocation = "android.permission.ACCESS_BACKGROUND_LOCATION"
	PowerExemption     = "power_exemption"
)

// ScreenIgnoreBatteryOptimization is the settings screen that asks the user
// to exempt a package from battery optimization.
const ScreenIgnoreBatteryOptimization = "android.settings.REQUEST_IGNORE_BATTERY_OPTIMIZATIONS"

// State is one fresh reading of the privileges background tracking needs.
// Fields are false whenever the underlying query failed.
type State struct {
	FineLocationGranted       bool `json:"fine_location_granted"`
	BackgroundLocationGranted bool `json:"background_location_granted"`
	PowerExemptionGranted     bool `json:"power_exemption_granted"`
}

// AllGranted reports whether nothing is missing.
func (s State) AllGranted() bool {
	return s.FineLocationGranted && s.BackgroundLocationGranted && s.PowerExemptionGranted
}

// Missing lists the capabilities not granted, in check order.
func (s State) Missing() []string {
	var missing []string
	if !s.FineLocationGranted {
		missing = append(missing, FineLocation)
	}
	if !s.BackgroundLocationGranted {
		missing = append(missing, BackgroundLocation)
	}
	if !s.PowerExemptionGranted {
		missing = append(missing, PowerExemption)
	}
	return missing
}
