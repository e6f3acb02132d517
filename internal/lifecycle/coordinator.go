package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/trackguard/internal/event"
	"github.com/nerrad567/trackguard/internal/mdm"
	"github.com/nerrad567/trackguard/internal/permission"
)

// ReasonHostResumed is the ensure-running reason used on resumption.
const ReasonHostResumed = "host_resumed"

// IdentitySource resolves the device identity, never failing.
type IdentitySource interface {
	Identity(ctx context.Context) string
}

// PermissionChecker is the part of the permission negotiator the
// coordinator drives.
type PermissionChecker interface {
	AttemptGrantAll(ctx context.Context) bool
	QueryStatus(ctx context.Context) permission.State
	LogStatus(ctx context.Context)
}

// StateReport is the snapshot published to management after every reload.
type StateReport struct {
	DeviceID    string           `json:"device_id"`
	Permissions permission.State `json:"permissions"`
	Missing     []string         `json:"missing"`
	Connected   bool             `json:"connected"`
	At          time.Time        `json:"at"`
}

// SupervisorStarter starts the supervisor process if it is not running.
type SupervisorStarter interface {
	EnsureRunning(ctx context.Context, reason string)
}

// SettingsApplier receives the management configuration document on every reload.
type SettingsApplier interface {
	ApplySettings(ctx context.Context, identity string, settings []byte) error
}

// Logger defines the logging interface for the coordinator.
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

// Deps wires a Coordinator. Identity, Permissions, Supervisor and Channel are required.
type Deps struct {
	Identity    IdentitySource
	Permissions PermissionChecker
	Supervisor  SupervisorStarter
	Channel     mdm.Channel

	// Applier is optional; without it a reload only logs.
	Applier SettingsApplier
	Logger  Logger
}

// Coordinator is the agent's lifecycle glue. It implements mdm.Handler.
type Coordinator struct {
	deps Deps
}

// NewCoordinator creates a coordinator.
func NewCoordinator(deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	return &Coordinator{deps: deps}
}

// Activate runs on agent start: permission status and grant attempt,
// supervisor start, then management connect or reload.
func (c *Coordinator) Activate(ctx context.Context) {
	id := c.deps.Identity.Identity(ctx)
	c.deps.Logger.Info("agent activated", "device_id", id)

	c.deps.Permissions.LogStatus(ctx)
	c.enter(ctx, id, event.ReasonHostActivation)
}

// Resume runs when the agent comes back to the foreground.
func (c *Coordinator) Resume(ctx context.Context) {
	id := c.deps.Identity.Identity(ctx)
	c.deps.Logger.Info("agent resumed", "device_id", id)

	c.enter(ctx, id, ReasonHostResumed)
}

func (c *Coordinator) enter(ctx context.Context, id, reason string) {
	if !c.deps.Permissions.AttemptGrantAll(ctx) {
		c.deps.Logger.Warn("running with missing permissions, tracking may be throttled", "device_id", id)
	}

	c.deps.Supervisor.EnsureRunning(ctx, reason)

	if c.deps.Channel.IsConnected() {
		c.deps.Logger.Info("already connected to management", "device_id", id)
		c.reload(ctx, id)
		return
	}
	if !c.deps.Channel.Connect(id) {
		c.deps.Logger.Warn("running outside management", "device_id", id)
		return
	}
	c.deps.Logger.Info("connecting to management", "device_id", id)
}

// Teardown disconnects from the management channel.
func (c *Coordinator) Teardown(ctx context.Context) {
	c.deps.Logger.Info("agent stopping", "device_id", c.deps.Identity.Identity(ctx))
	c.deps.Channel.Disconnect()
}

// OnConnected reloads settings.
func (c *Coordinator) OnConnected() {
	ctx := context.Background()
	id := c.deps.Identity.Identity(ctx)
	c.deps.Logger.Info("connected to management", "device_id", id)
	c.reload(ctx, id)
}

// OnDisconnected only logs.
func (c *Coordinator) OnDisconnected() {
	c.deps.Logger.Info("disconnected from management", "device_id", c.deps.Identity.Identity(context.Background()))
}

// OnConfigChanged reloads settings.
func (c *Coordinator) OnConfigChanged() {
	ctx := context.Background()
	id := c.deps.Identity.Identity(ctx)
	c.deps.Logger.Info("management config changed", "device_id", id)
	c.reload(ctx, id)
}

// reload hands the channel's current document to the applier, then
// reports the device state back.
func (c *Coordinator) reload(ctx context.Context, id string) {
	settings := c.deps.Channel.Settings()
	c.deps.Logger.Info("loading management settings", "device_id", id, "bytes", len(settings))

	if c.deps.Applier != nil && settings != nil {
		if err := c.deps.Applier.ApplySettings(ctx, id, settings); err != nil {
			c.deps.Logger.Error("applying management settings failed", "device_id", id, "error", err)
		}
	}
	c.report(ctx, id)
}

func (c *Coordinator) report(ctx context.Context, id string) {
	state := c.deps.Permissions.QueryStatus(ctx)
	doc, err := json.Marshal(StateReport{
		DeviceID:    id,
		Permissions: state,
		Missing:     state.Missing(),
		Connected:   c.deps.Channel.IsConnected(),
		At:          time.Now().UTC(),
	})
	if err != nil {
		c.deps.Logger.Error("encoding state report failed", "device_id", id, "error", err)
		return
	}
	if err := c.deps.Channel.ReportState(id, doc); err != nil {
		c.deps.Logger.Warn("publishing state report failed", "device_id", id, "error", err)
	}
}

var _ mdm.Handler = (*Coordinator)(nil)
