package permission

import (
	"context"
	"fmt"
)

// Platform versions at which each restriction appeared (Android API levels).
const (
	DefaultBackgroundLocationMinVersion = 29
	DefaultPowerExemptionMinVersion     = 23
)

// Source answers permission queries against the host.
type Source interface {
	Granted(ctx context.Context, capability string) (bool, error)
	PowerExempt(ctx context.Context) (bool, error)
	OpenSettings(ctx context.Context, screen string) error
}

// Logger defines the logging interface for the negotiator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Negotiator.
type Options struct {
	// Package is the tracked application's package name.
	Package string

	// PlatformVersion is the host API level. 0 means unknown and every check applies.
	PlatformVersion int

	BackgroundLocationMinVersion int
	PowerExemptionMinVersion     int

	// Provider words remediation hints. Default: ObserveOnly.
	Provider PrivilegeProvider

	// Snapshot, if set, receives every computed State.
	Snapshot func(State)

	Logger Logger
}

// Negotiator checks, and reports on, the privileges background tracking needs.
// It cannot force a grant; it can only observe and point the way.
type Negotiator struct {
	source Source
	opts   Options
}

// NewNegotiator creates a negotiator reading from source.
func NewNegotiator(source Source, opts Options) *Negotiator {
	if opts.BackgroundLocationMinVersion == 0 {
		opts.BackgroundLocationMinVersion = DefaultBackgroundLocationMinVersion
	}
	if opts.PowerExemptionMinVersion == 0 {
		opts.PowerExemptionMinVersion = DefaultPowerExemptionMinVersion
	}
	if opts.Provider == nil {
		opts.Provider = ObserveOnly{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Negotiator{source: source, opts: opts}
}

// requires reports whether a restriction introduced at minVersion applies.
func (n *Negotiator) requires(minVersion int) bool {
	return n.opts.PlatformVersion <= 0 || n.opts.PlatformVersion >= minVersion
}

// BackgroundLocationApplies reports whether background location is checked on this platform.
func (n *Negotiator) BackgroundLocationApplies() bool {
	return n.requires(n.opts.BackgroundLocationMinVersion)
}

// PowerExemptionApplies reports whether power exemption is checked on this platform.
func (n *Negotiator) PowerExemptionApplies() bool {
	return n.requires(n.opts.PowerExemptionMinVersion)
}

// QueryStatus reads the current state. It has no side effects beyond
// logging and never fails: an unanswerable query reads as not granted.
func (n *Negotiator) QueryStatus(ctx context.Context) State {
	state := State{
		FineLocationGranted:       n.granted(ctx, FineLocation),
		BackgroundLocationGranted: true,
		PowerExemptionGranted:     true,
	}
	if n.BackgroundLocationApplies() {
		state.BackgroundLocationGranted = n.granted(ctx, BackgroundLocation)
	}
	if n.PowerExemptionApplies() {
		state.PowerExemptionGranted = n.powerExempt(ctx)
	}
	if n.opts.Snapshot != nil {
		n.opts.Snapshot(state)
	}
	return state
}

// AttemptGrantAll checks every capability in order and reports whether all
// are held. Each missing capability gets its own warning plus the
// provider's remediation hints.
func (n *Negotiator) AttemptGrantAll(ctx context.Context) bool {
	n.opts.Logger.Info("checking required permissions", "provider", n.opts.Provider.Name())

	state := n.QueryStatus(ctx)

	locationOK := state.FineLocationGranted && state.BackgroundLocationGranted
	if locationOK {
		n.opts.Logger.Info("location permissions already granted")
	} else {
		n.opts.Logger.Warn("location permissions not granted",
			"fine", state.FineLocationGranted,
			"background", state.BackgroundLocationGranted,
		)
	}

	if state.PowerExemptionGranted {
		n.opts.Logger.Info("battery optimization already disabled")
	}

	for _, capability := range state.Missing() {
		n.opts.Logger.Warn("permission missing", "permission", capability)
		for _, hint := range n.opts.Provider.Hints(capability, n.opts.Package) {
			n.opts.Logger.Info("remediation", "permission", capability, "hint", hint)
		}
	}

	return state.AllGranted()
}

// RequestManualExemption opens the battery-optimization screen for the
// user. Failures are logged and swallowed.
func (n *Negotiator) RequestManualExemption(ctx context.Context) {
	if !n.PowerExemptionApplies() {
		return
	}
	if err := n.source.OpenSettings(ctx, ScreenIgnoreBatteryOptimization); err != nil {
		n.opts.Logger.Error("failed to open battery settings", "error", err)
	}
}

// LogStatus writes the permission status block.
func (n *Negotiator) LogStatus(ctx context.Context) {
	state := n.QueryStatus(ctx)

	args := []any{"fine_location", state.FineLocationGranted}
	if n.BackgroundLocationApplies() {
		args = append(args, "background_location", state.BackgroundLocationGranted)
	}
	if n.PowerExemptionApplies() {
		args = append(args, "battery_optimization_disabled", state.PowerExemptionGranted)
	}
	args = append(args, "platform_version", n.opts.PlatformVersion, "managed", n.opts.Provider.Managed())

	n.opts.Logger.Info("permission status", args...)
}

func (n *Negotiator) granted(ctx context.Context, capability string) bool {
	ok, err := ask(func() (bool, error) { return n.source.Granted(ctx, capability) })
	if err != nil {
		n.opts.Logger.Warn("permission query failed, treating as not granted",
			"permission", capability,
			"error", fmt.Errorf("%w: %w", ErrQueryFailed, err),
		)
		return false
	}
	return ok
}

func (n *Negotiator) powerExempt(ctx context.Context) bool {
	ok, err := ask(func() (bool, error) { return n.source.PowerExempt(ctx) })
	if err != nil {
		n.opts.Logger.Warn("power exemption query failed, treating as not granted",
			"error", fmt.Errorf("%w: %w", ErrQueryFailed, err),
		)
		return false
	}
	return ok
}

// ask runs one Source query. A panicking host call becomes an error, and
// so a not-granted reading.
func ask(query func() (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("source panic: %v", r)
		}
	}()
	return query()
}
