package process

import (
	"context"
	"fmt"
	"strings"
)

// Target names a launchable process.
type Target string

const (
	// TargetMain is the tracked agent process.
	TargetMain Target = "main"

	// TargetSupervisor is the supervisor process itself.
	TargetSupervisor Target = "supervisor"
)

// Mode is the privilege mode a process is launched in.
type Mode string

const (
	// ModeForeground grants elevated scheduling priority and exemption from
	// background execution limits.
	ModeForeground Mode = "foreground"

	// ModeBackground is a plain start subject to background restrictions.
	ModeBackground Mode = "background"
)

// DefaultForegroundMinVersion is the first platform version (Android API 26)
// that refuses plain background starts.
const DefaultForegroundMinVersion = 26

// ModeFor selects the launch mode for a platform version.
// A version of 0 or below means the version is unknown and is treated as modern.
func ModeFor(platformVersion, foregroundMinVersion int) Mode {
	if platformVersion <= 0 || platformVersion >= foregroundMinVersion {
		return ModeForeground
	}
	return ModeBackground
}

// Request is a fire-and-forget instruction to start or resume a process.
type Request struct {
	Target Target
	Mode   Mode
	Reason string
}

func (r Request) String() string {
	return fmt.Sprintf("%s/%s (%s)", r.Target, r.Mode, r.Reason)
}

// Launcher issues relaunch requests to the host OS.
// A nil error means the request was issued, not that the process is confirmed alive.
type Launcher interface {
	Launch(ctx context.Context, req Request) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, req Request) error

// Launch calls f(ctx, req).
func (f LauncherFunc) Launch(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// RestartPolicy is the restart contract a supervised unit declares at registration.
type RestartPolicy string

const (
	// RestartAlways recreates the unit after any involuntary termination.
	RestartAlways RestartPolicy = "always"

	// RestartNever leaves the unit stopped once it terminates.
	RestartNever RestartPolicy = "never"
)

// ParseRestartPolicy converts a config string to a RestartPolicy.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch RestartPolicy(strings.ToLower(s)) {
	case RestartAlways:
		return RestartAlways, nil
	case RestartNever:
		return RestartNever, nil
	default:
		return "", fmt.Errorf("unknown restart policy %q", s)
	}
}

// Registration describes a supervised unit as it is handed to the process tree.
type Registration struct {
	Name   string
	Policy RestartPolicy
}

// Logger defines the logging interface for launchers and registries.
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
