package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/nerrad567/trackguard/internal/process"
)

// GuardConfig tunes the relaunch breaker.
type GuardConfig struct {
	// MaxFailures is the number of consecutive launch failures that open the breaker.
	// Default: 5
	MaxFailures uint32

	// Cooldown is how long the breaker stays open before letting one request through.
	// Default: 60s
	Cooldown time.Duration
}

// GuardedLauncher wraps a launcher with a circuit breaker so a
// permanently broken host cannot be hammered by an event storm. It is
// shared by every instance the Service creates.
type GuardedLauncher struct {
	next   process.Launcher
	cb     *gobreaker.CircuitBreaker[any]
	logger Logger
}

// NewGuardedLauncher wraps next.
func NewGuardedLauncher(next process.Launcher, cfg GuardConfig, logger Logger) *GuardedLauncher {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if logger == nil {
		logger = noopLogger{}
	}

	g := &GuardedLauncher{next: next, logger: logger}
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "relaunch",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				g.logger.Error("relaunch breaker opened", "breaker", name, "cooldown", cfg.Cooldown)
				return
			}
			g.logger.Info("relaunch breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Launch passes req through the breaker.
func (g *GuardedLauncher) Launch(ctx context.Context, req process.Request) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.next.Launch(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrBreakerOpen, err)
	}
	return err
}

// State returns the breaker state name (closed, half-open, open).
func (g *GuardedLauncher) State() string {
	return g.cb.State().String()
}
