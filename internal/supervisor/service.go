package supervisor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/thejerf/suture/v4"

	"github.com/nerrad567/trackguard/internal/event"
	"github.com/nerrad567/trackguard/internal/process"
)

// Service runs Supervisor instances inside a suture tree. Each Serve call
// owns one fresh instance; when that instance terminates, Serve returns
// and the declared restart policy decides whether the tree brings up a
// replacement.
//
// The listener and its redelivery window outlive individual instances,
// so an event redelivered across a recreation is still dropped.
type Service struct {
	reg     process.Registration
	bus     *event.Bus
	factory func() *Supervisor
	logger  Logger

	listener   *event.Listener
	generation atomic.Int64

	mu      sync.RWMutex
	current *Supervisor
}

// NewService registers a supervisor unit. factory is called once per Serve.
func NewService(reg process.Registration, bus *event.Bus, factory func() *Supervisor) *Service {
	if reg.Name == "" {
		reg.Name = "supervisor"
	}
	if reg.Policy == "" {
		reg.Policy = process.RestartAlways
	}
	s := &Service{
		reg:     reg,
		bus:     bus,
		factory: factory,
		logger:  noopLogger{},
	}
	s.listener = event.NewListener(s)
	return s
}

// SetLogger sets the logger for the service and its listener.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
	s.listener.SetLogger(logger)
}

// SetObserver registers an observer for accepted events.
func (s *Service) SetObserver(o event.Observer) {
	s.listener.SetObserver(o)
}

// String names the service in suture's event log.
func (s *Service) String() string {
	return s.reg.Name
}

// Policy returns the restart policy declared at registration.
func (s *Service) Policy() process.RestartPolicy {
	return s.reg.Policy
}

// Generation returns how many instances have been created.
func (s *Service) Generation() int64 {
	return s.generation.Load()
}

// Current returns the live instance, or nil between instances.
func (s *Service) Current() *Supervisor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	inst := s.factory()
	inst.announce()
	gen := s.generation.Add(1)

	s.mu.Lock()
	s.current = inst
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.current == inst {
			s.current = nil
		}
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := s.bus.Subscribe(runCtx)
	if err != nil {
		return err
	}
	busDone := make(chan error, 1)
	go func() {
		busDone <- sub.Run(runCtx, s.listener.OnEvent)
	}()

	reason := event.ReasonHostActivation
	if gen > 1 {
		reason = event.ReasonSupervisorRecreated
	}
	s.logger.Info("supervisor instance started", "generation", gen, "policy", s.reg.Policy)
	inst.EnsureRunning(runCtx, reason)

	select {
	case <-ctx.Done():
		cancel()
		<-busDone
		return ctx.Err()

	case <-inst.Done():
		cancel()
		<-busDone
		if s.reg.Policy == process.RestartNever {
			s.logger.Warn("supervisor instance terminated, restart policy never", "generation", gen)
			return suture.ErrDoNotRestart
		}
		s.logger.Info("supervisor instance terminated, recreating", "generation", gen)
		return ErrInstanceTerminated

	case <-busDone:
		// The bus only ends on its own when it is closed at shutdown.
		return suture.ErrDoNotRestart
	}
}

// EnsureRunning forwards to the live instance. Between instances the call
// is dropped; the next instance ensures on creation.
func (s *Service) EnsureRunning(ctx context.Context, reason string) {
	if inst := s.Current(); inst != nil {
		inst.EnsureRunning(ctx, reason)
	}
}

// OnTaskRemoved forwards to the live instance.
func (s *Service) OnTaskRemoved(ctx context.Context) {
	if inst := s.Current(); inst != nil {
		inst.OnTaskRemoved(ctx)
	}
}

// OnDestroyed forwards to the live instance.
func (s *Service) OnDestroyed(ctx context.Context) {
	if inst := s.Current(); inst != nil {
		inst.OnDestroyed(ctx)
	}
}
