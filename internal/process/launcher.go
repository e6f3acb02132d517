package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// backgroundNice is the scheduling priority given to background-mode launches.
const backgroundNice = 10

// Launch metadata passed to children in their environment.
const (
	EnvLaunchReason = "TRACKGUARD_LAUNCH_REASON"
	EnvLaunchMode   = "TRACKGUARD_LAUNCH_MODE"
)

// Command is a launchable command line for one Target.
type Command struct {
	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format),
	// appended to the parent's environment.
	Env []string

	// WorkDir is the working directory. Empty inherits from the parent.
	WorkDir string
}

// ExecLauncher starts configured commands as detached children.
//
// Plain hosts do not make "launch an already active process" a no-op, so
// every launch first checks the children this launcher started and has not
// yet reaped, then the Registry, and returns nil without starting anything
// when the target has a live holder.
type ExecLauncher struct {
	commands map[Target]Command
	registry *Registry
	logger   Logger

	mu       sync.Mutex
	children map[Target]int
}

// NewExecLauncher creates a launcher for the given per-target commands.
func NewExecLauncher(registry *Registry, commands map[Target]Command) *ExecLauncher {
	return &ExecLauncher{
		commands: commands,
		registry: registry,
		logger:   noopLogger{},
		children: make(map[Target]int),
	}
}

// SetLogger sets the logger for the launcher.
func (l *ExecLauncher) SetLogger(logger Logger) {
	l.logger = logger
}

// Launch starts req.Target unless it is already running.
func (l *ExecLauncher) Launch(_ context.Context, req Request) error {
	command, ok := l.commands[req.Target]
	if !ok || command.Binary == "" {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, req.Target)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if pid, ok := l.children[req.Target]; ok {
		l.logger.Debug("launch skipped, child still running",
			"target", req.Target,
			"pid", pid,
			"reason", req.Reason,
		)
		return nil
	}
	if pid, alive := l.registry.Alive(req.Target); alive {
		l.logger.Debug("launch skipped, target already running",
			"target", req.Target,
			"pid", pid,
			"reason", req.Reason,
		)
		return nil
	}

	// Not CommandContext: the child must outlive the request.
	cmd := exec.Command(command.Binary, command.Args...) //nolint:gosec // binary comes from validated config

	// Own process group so signals aimed at the supervisor do not reach the child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Env = append(os.Environ(), command.Env...)
	cmd.Env = append(cmd.Env,
		EnvLaunchReason+"="+req.Reason,
		EnvLaunchMode+"="+string(req.Mode),
	)
	if command.WorkDir != "" {
		cmd.Dir = command.WorkDir
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %w", ErrLaunch, req.Target, err)
	}
	pid := cmd.Process.Pid

	if req.Mode == ModeBackground {
		if err := unix.Setpriority(unix.PRIO_PROCESS, pid, backgroundNice); err != nil {
			l.logger.Warn("failed to lower child priority", "target", req.Target, "pid", pid, "error", err)
		}
	}

	if err := l.registry.Record(req.Target, pid); err != nil {
		l.logger.Warn("failed to record pid", "target", req.Target, "pid", pid, "error", err)
	}

	l.children[req.Target] = pid

	// Reap the child so an exited process does not linger as a zombie.
	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		if l.children[req.Target] == pid {
			delete(l.children, req.Target)
		}
		l.mu.Unlock()
		l.logger.Info("launched process exited", "target", req.Target, "pid", pid, "error", err)
	}()

	l.logger.Info("process launched",
		"target", req.Target,
		"mode", req.Mode,
		"pid", pid,
		"reason", req.Reason,
	)
	return nil
}
