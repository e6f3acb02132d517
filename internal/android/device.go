package android

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/trackguard/internal/process"
)

// flagActivityNewTask is Intent.FLAG_ACTIVITY_NEW_TASK, required when an
// activity is started from outside an existing task.
const flagActivityNewTask = "0x10000000"

// ComponentKind is how the activity manager starts a component.
type ComponentKind string

const (
	KindActivity ComponentKind = "activity"
	KindService  ComponentKind = "service"
)

// Component is a launchable "package/.Class" name.
type Component struct {
	Name string
	Kind ComponentKind
}

// Logger defines the logging interface for the device.
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

// Device is the Android host back-end. It is a process.Launcher and a
// permission.Source.
type Device struct {
	runner     Runner
	pkg        string
	components map[process.Target]Component
	logger     Logger
}

// NewDevice creates a device for the tracked package.
func NewDevice(runner Runner, pkg string, components map[process.Target]Component) *Device {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Device{
		runner:     runner,
		pkg:        pkg,
		components: components,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the device.
func (d *Device) SetLogger(logger Logger) {
	d.logger = logger
}

// Launch asks the activity manager to start the target's component.
// Starting an already running component is a no-op on Android.
func (d *Device) Launch(ctx context.Context, req process.Request) error {
	comp, ok := d.components[req.Target]
	if !ok || comp.Name == "" {
		return fmt.Errorf("%w: %s", process.ErrUnknownTarget, req.Target)
	}
	if !strings.Contains(comp.Name, "/") {
		return fmt.Errorf("%w: %q", ErrBadComponent, comp.Name)
	}

	args := launchArgs(comp, req.Mode)
	d.logger.Debug("starting component", "component", comp.Name, "args", args, "reason", req.Reason)

	_, err := d.am(ctx, args...)
	return err
}

func launchArgs(comp Component, mode process.Mode) []string {
	if comp.Kind == KindActivity {
		return []string{"start", "-n", comp.Name, "-f", flagActivityNewTask}
	}
	if mode == process.ModeForeground {
		return []string{"start-foreground-service", "-n", comp.Name}
	}
	return []string{"startservice", "-n", comp.Name}
}

// Granted reports whether the package holds a runtime permission.
func (d *Device) Granted(ctx context.Context, capability string) (bool, error) {
	out, err := d.run(ctx, "dumpsys", "package", d.pkg)
	if err != nil {
		return false, err
	}
	return permissionGranted(out, capability), nil
}

// permissionGranted scans dumpsys package output for "<perm>: granted=true".
// The runtime permissions section is authoritative when the permission
// appears more than once.
func permissionGranted(out []byte, capability string) bool {
	prefix := capability + ":"
	granted := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		granted = strings.Contains(line, "granted=true")
	}
	return granted
}

// PowerExempt reports whether the package is on the device-idle whitelist.
func (d *Device) PowerExempt(ctx context.Context) (bool, error) {
	out, err := d.run(ctx, "dumpsys", "deviceidle", "whitelist")
	if err != nil {
		return false, err
	}
	return powerWhitelisted(out, d.pkg), nil
}

// powerWhitelisted looks for lines like "user,org.traccar.client,10123".
func powerWhitelisted(out []byte, pkg string) bool {
	needle := "," + pkg + ","
	for line := range strings.SplitSeq(string(out), "\n") {
		if strings.Contains(strings.TrimSpace(line)+",", needle) {
			return true
		}
	}
	return false
}

// OpenSettings navigates to a settings screen for the package.
func (d *Device) OpenSettings(ctx context.Context, screen string) error {
	_, err := d.am(ctx, "start", "-a", screen, "-d", "package:"+d.pkg)
	return err
}

// PlatformVersion returns the SDK level from ro.build.version.sdk.
func (d *Device) PlatformVersion(ctx context.Context) (int, error) {
	out, err := d.run(ctx, "getprop", "ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("%w: parsing sdk level %q: %w", ErrCommandFailed, bytes.TrimSpace(out), err)
	}
	return v, nil
}

// am runs the activity manager. It exits zero on some failures and prints
// "Error:" instead, so the output is checked too.
func (d *Device) am(ctx context.Context, args ...string) ([]byte, error) {
	out, err := d.run(ctx, "am", args...)
	if err != nil {
		return out, err
	}
	for line := range strings.SplitSeq(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Error:") || strings.HasPrefix(line, "Error type") {
			return out, fmt.Errorf("%w: am %s: %s", ErrCommandFailed, strings.Join(args, " "), line)
		}
	}
	return out, nil
}

func (d *Device) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := d.runner.Run(ctx, name, args...)
	if err != nil {
		return out, fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, name, strings.Join(args, " "), err)
	}
	return out, nil
}
