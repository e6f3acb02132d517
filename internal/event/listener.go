package event

import (
	"context"
	"sync"
)

// seenWindow is how many recent event IDs are remembered for redelivery suppression.
const seenWindow = 256

// Target is what the listener dispatches to. Every method must be safe to
// call repeatedly: ensure-running is the only start primitive.
type Target interface {
	EnsureRunning(ctx context.Context, reason string)
	OnTaskRemoved(ctx context.Context)
	OnDestroyed(ctx context.Context)
}

// Observer is told about every event the listener accepts.
type Observer interface {
	ObserveEvent(kind Kind)
}

// Logger defines the logging interface for the listener.
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

// Listener is the stateless dispatcher between host signals and the
// supervisor. Its only memory is a bounded window of recently seen IDs.
type Listener struct {
	target   Target
	logger   Logger
	observer Observer

	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	next int
}

// NewListener creates a listener dispatching to target.
func NewListener(target Target) *Listener {
	return &Listener{
		target: target,
		logger: noopLogger{},
		seen:   make(map[string]struct{}, seenWindow),
		ring:   make([]string, seenWindow),
	}
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	l.logger = logger
}

// SetObserver registers an observer for accepted events.
func (l *Listener) SetObserver(o Observer) {
	l.observer = o
}

// OnEvent dispatches evt. A redelivered instance (same ID) is dropped.
// Unknown kinds are logged and ignored.
func (l *Listener) OnEvent(ctx context.Context, evt Event) {
	if !evt.Kind.Valid() {
		l.logger.Warn("ignoring unknown event kind", "kind", evt.Kind, "id", evt.ID)
		return
	}
	if !l.firstDelivery(evt.ID) {
		l.logger.Debug("dropping redelivered event", "kind", evt.Kind, "id", evt.ID)
		return
	}
	if l.observer != nil {
		l.observer.ObserveEvent(evt.Kind)
	}

	switch evt.Kind {
	case KindDeviceStarted:
		l.logger.Info("device booted, starting supervisor", "id", evt.ID)
	case KindPackageUpdated:
		l.logger.Info("app updated, restarting supervisor", "id", evt.ID)
	case KindProcessRestarted:
		l.logger.Warn("app process killed, restarting", "id", evt.ID)
	case KindTaskRemoved:
		l.logger.Warn("app removed from recents, relaunching", "id", evt.ID)
		l.target.OnTaskRemoved(ctx)
	case KindSupervisorDestroyed:
		l.logger.Warn("supervisor destroyed by host", "id", evt.ID)
		l.target.OnDestroyed(ctx)
	}

	if evt.Kind.IsBroadcast() {
		l.target.EnsureRunning(ctx, string(evt.Kind))
	}
}

// firstDelivery records id and reports whether it was new.
// Events without an ID are never deduplicated.
func (l *Listener) firstDelivery(id string) bool {
	if id == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[id]; dup {
		return false
	}
	if old := l.ring[l.next]; old != "" {
		delete(l.seen, old)
	}
	l.ring[l.next] = id
	l.next = (l.next + 1) % seenWindow
	l.seen[id] = struct{}{}
	return true
}
