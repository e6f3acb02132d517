package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/trackguard/internal/event"
	"github.com/nerrad567/trackguard/internal/process"
)

// DefaultSettleWindow is how long after a launch request further
// activation-driven EnsureRunning calls in Running are treated as the same
// activation. System broadcasts are never held back by it.
const DefaultSettleWindow = 5 * time.Second

// ReasonInstanceCreated labels the initial Stopped state a new instance reports.
const ReasonInstanceCreated = "instance_created"

// Logger defines the logging interface for the supervisor.
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

// Options configures a Supervisor instance.
type Options struct {
	// EnsureTarget is what EnsureRunning launches. The supervisor process
	// ensures the main process; the main process ensures the supervisor.
	// Default: process.TargetMain.
	EnsureTarget process.Target

	// PlatformVersion is the host OS API level. 0 means unknown and is
	// treated as modern.
	PlatformVersion int

	// ForegroundMinVersion is the first platform version that requires
	// foreground-privileged launches. Default: process.DefaultForegroundMinVersion.
	ForegroundMinVersion int

	// SettleWindow coalesces non-broadcast EnsureRunning calls in Running.
	// Default: DefaultSettleWindow.
	SettleWindow time.Duration

	Recorder Recorder
	Logger   Logger

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Supervisor is one instance of the supervision state machine.
//
// Transitions:
//
//	Stopped  --EnsureRunning-->   Starting --launch ok--> Running
//	Starting --launch error-->    Stopped
//	any      --OnTaskRemoved-->   Starting (instance terminated)
//	any      --OnDestroyed-->     Stopped  (instance terminated)
//
// Once terminated, every further call on the instance is a no-op. The
// owning Service notices Done and creates a replacement.
type Supervisor struct {
	launcher process.Launcher
	opts     Options

	mu         sync.Mutex
	state      State
	inflight   bool
	lastLaunch time.Time
	terminated bool
	done       chan struct{}
}

// New creates a Stopped instance that issues requests through launcher.
func New(launcher process.Launcher, opts Options) *Supervisor {
	if opts.EnsureTarget == "" {
		opts.EnsureTarget = process.TargetMain
	}
	if opts.ForegroundMinVersion == 0 {
		opts.ForegroundMinVersion = process.DefaultForegroundMinVersion
	}
	if opts.SettleWindow == 0 {
		opts.SettleWindow = DefaultSettleWindow
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Supervisor{
		launcher: launcher,
		opts:     opts,
		state:    StateStopped,
		done:     make(chan struct{}),
	}
}

// State returns the current run state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Terminated reports whether this instance has ended.
func (s *Supervisor) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Done is closed when the instance terminates.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Mode returns the launch mode used for the ensure target.
func (s *Supervisor) Mode() process.Mode {
	return process.ModeFor(s.opts.PlatformVersion, s.opts.ForegroundMinVersion)
}

// EnsureRunning is start-if-not-already-started. From Stopped it moves to
// Starting and issues one launch request for the ensure target. Calls made
// while a request is in flight do nothing. Host activations and recreations
// within the settle window after a request do nothing either, but every
// distinct system broadcast issues its own request: a process-killed signal
// right after a launch still needs one. A failed request returns the
// instance to Stopped and is not retried; the next event or recreation
// tries again.
func (s *Supervisor) EnsureRunning(ctx context.Context, reason string) {
	s.mu.Lock()
	switch {
	case s.terminated:
		s.mu.Unlock()
		s.opts.Logger.Debug("ensure running ignored, instance terminated", "reason", reason)
		return
	case s.inflight:
		s.mu.Unlock()
		s.opts.Logger.Debug("ensure running coalesced, launch in flight", "reason", reason)
		return
	case s.state == StateRunning && !event.Kind(reason).IsBroadcast() &&
		s.opts.Now().Sub(s.lastLaunch) < s.opts.SettleWindow:
		s.mu.Unlock()
		s.opts.Logger.Debug("ensure running coalesced, recently launched", "reason", reason)
		return
	}
	if s.state == StateStopped {
		s.transition(StateStarting, reason)
	}
	s.inflight = true
	s.mu.Unlock()

	err := s.launch(ctx, process.Request{
		Target: s.opts.EnsureTarget,
		Mode:   s.Mode(),
		Reason: reason,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
	s.lastLaunch = s.opts.Now()
	if s.terminated {
		return
	}
	if err != nil {
		s.transition(StateStopped, reason)
		return
	}
	if s.state == StateStarting {
		s.transition(StateRunning, reason)
	}
}

// OnTaskRemoved handles the user clearing the app from the recent-task
// list. The main process is relaunched, then the supervisor itself, then
// this instance terminates in Starting. Both requests are issued even if
// the first fails.
func (s *Supervisor) OnTaskRemoved(ctx context.Context) {
	const reason = string(event.KindTaskRemoved)

	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.mu.Unlock()

	s.opts.Logger.Warn("app removed from recents, relaunching main and supervisor")

	//nolint:errcheck // failures are logged and recorded inside launch
	s.launch(ctx, process.Request{
		Target: process.TargetMain,
		Mode:   s.Mode(),
		Reason: reason,
	})
	//nolint:errcheck // failures are logged and recorded inside launch
	s.launch(ctx, process.Request{
		Target: process.TargetSupervisor,
		Mode:   process.ModeBackground,
		Reason: reason,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition(StateStarting, reason)
	close(s.done)
}

// OnDestroyed handles the host reclaiming the supervisor. The instance
// moves to Stopped and terminates; bringing it back is the restart
// policy's job.
func (s *Supervisor) OnDestroyed(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	s.transition(StateStopped, string(event.KindSupervisorDestroyed))
	close(s.done)
}

// announce reports the instance's initial state to the recorder, which may
// still hold the previous instance's last state.
func (s *Supervisor) announce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Recorder.Transition(s.state, s.state, ReasonInstanceCreated)
}

// transition must be called with mu held.
func (s *Supervisor) transition(to State, reason string) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.opts.Logger.Info("supervisor state changed", "from", from, "to", to, "reason", reason)
	s.opts.Recorder.Transition(from, to, reason)
}

// launch issues one request. Errors are converted to a log line and a
// recorder entry here, at the boundary of the host call.
func (s *Supervisor) launch(ctx context.Context, req process.Request) error {
	err := safeLaunch(ctx, s.launcher, req)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrRelaunchFailed, req, err)
		s.opts.Logger.Error("relaunch request failed",
			"target", req.Target,
			"mode", req.Mode,
			"reason", req.Reason,
			"error", err,
		)
	} else {
		s.opts.Logger.Info("relaunch request issued",
			"target", req.Target,
			"mode", req.Mode,
			"reason", req.Reason,
		)
	}
	s.opts.Recorder.Relaunch(req, err)
	return err
}

// safeLaunch converts a panicking host call into an error so a broken
// launcher cannot take the supervisor down with it.
func safeLaunch(ctx context.Context, l process.Launcher, req process.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("launcher panic: %v", r)
		}
	}()
	return l.Launch(ctx, req)
}
