package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/trackguard/internal/event"
	"github.com/nerrad567/trackguard/internal/identity"
	"github.com/nerrad567/trackguard/internal/infrastructure/config"
	"github.com/nerrad567/trackguard/internal/infrastructure/logging"
	"github.com/nerrad567/trackguard/internal/lifecycle"
	"github.com/nerrad567/trackguard/internal/process"
	"github.com/nerrad567/trackguard/internal/spool"
	"github.com/nerrad567/trackguard/internal/supervisor"
)

// ─── emit ────────────────────────────────────────────────────────────────────

type EmitCmd struct {
	Kind   string `arg:"" help:"Event kind (device_started, package_updated, process_restarted, task_removed, supervisor_destroyed) or Android intent action."`
	Source string `help:"Free-form origin recorded on the event." default:"cli"`
	ID     string `help:"Event instance ID. Redeliveries reuse the same ID. Default: random."`
}

func (c *EmitCmd) Run(g *Globals) error {
	kind, err := event.ParseKind(c.Kind)
	if err != nil {
		return err
	}
	cfg, err := g.LoadOrDefault()
	if err != nil {
		return err
	}
	events, err := spool.Open(cfg.Spool.EventsDir)
	if err != nil {
		return fmt.Errorf("opening event spool: %w", err)
	}

	evt := event.New(kind, c.Source)
	if c.ID != "" {
		evt.ID = c.ID
	}
	if _, err := events.Write(evt); err != nil {
		return err
	}
	fmt.Fprintln(g.Out(), evt.ID)

	if !kind.IsBroadcast() {
		return nil
	}
	return ensureSupervisor(g, cfg, kind)
}

// ensureSupervisor starts the supervisor process for a broadcast, so a
// boot or update signal works even when nothing is running to drain the
// spool. The spooled event reaches the supervisor once it is up.
func ensureSupervisor(g *Globals, cfg *config.Config, kind event.Kind) error {
	ctx := g.Context()
	log := logging.New(cfg.Logging, version).With("role", "emit")

	h, err := openHost(ctx, cfg, log)
	if err != nil {
		return err
	}
	sup := supervisor.New(h.launcher, supervisor.Options{
		EnsureTarget:         process.TargetSupervisor,
		PlatformVersion:      h.platformVersion,
		ForegroundMinVersion: cfg.Supervisor.ForegroundMinVersion,
		Logger:               log,
	})
	sup.EnsureRunning(ctx, string(kind))
	if sup.State() != supervisor.StateRunning {
		return fmt.Errorf("%w: %s for %s", supervisor.ErrRelaunchFailed, process.TargetSupervisor, kind)
	}
	return nil
}

// ─── call ────────────────────────────────────────────────────────────────────

type CallCmd struct {
	Method string   `arg:"" help:"Command name (setDeviceId, logInfo, logDebug, logWarning, logError, logVerbose)."`
	Args   []string `arg:"" optional:"" help:"Arguments as key=value."`
}

func (c *CallCmd) Run(g *Globals) error {
	args, err := parseCallArgs(c.Args)
	if err != nil {
		return err
	}
	cfg, err := g.LoadOrDefault()
	if err != nil {
		return err
	}
	inbox, err := spool.Open(cfg.Spool.CommandsDir)
	if err != nil {
		return fmt.Errorf("opening command spool: %w", err)
	}

	call := lifecycle.Call{
		ID:     uuid.NewString(),
		Method: c.Method,
		Args:   args,
		At:     time.Now().UTC(),
	}
	if _, err := inbox.Write(call); err != nil {
		return err
	}
	fmt.Fprintln(g.Out(), call.ID)
	return nil
}

func parseCallArgs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument must be key=value, got: %s", pair)
		}
		args[key] = value
	}
	return args, nil
}

// ─── identity ────────────────────────────────────────────────────────────────

type IdentityCmd struct {
	Show  IdentityShowCmd  `cmd:"" default:"1" help:"Print the resolved device identity."`
	Set   IdentitySetCmd   `cmd:"" help:"Persist the device identity preference."`
	Clear IdentityClearCmd `cmd:"" help:"Remove the device identity from every configured key."`
}

type IdentityShowCmd struct{}

func (c *IdentityShowCmd) Run(g *Globals) error {
	ctx := g.Context()
	cfg, err := g.LoadOrDefault()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, logging.Default())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only use

	resolver := identity.NewResolver(identity.NewStore(db), cfg.Identity.Keys)
	fmt.Fprintln(g.Out(), resolver.Identity(ctx))
	return nil
}

type IdentitySetCmd struct {
	ID string `arg:"" help:"Device identity."`
}

func (c *IdentitySetCmd) Run(g *Globals) error {
	id := strings.TrimSpace(c.ID)
	if id == "" || id == identity.Unknown {
		return fmt.Errorf("invalid device identity %q", c.ID)
	}

	ctx := g.Context()
	cfg, err := g.LoadOrDefault()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, logging.Default())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // best effort after write

	// The first key is the primary source.
	if err := identity.NewStore(db).Set(ctx, cfg.Identity.Keys[0], id); err != nil {
		return err
	}
	fmt.Fprintf(g.Out(), "%s=%s\n", cfg.Identity.Keys[0], id)
	return nil
}

type IdentityClearCmd struct{}

func (c *IdentityClearCmd) Run(g *Globals) error {
	ctx := g.Context()
	cfg, err := g.LoadOrDefault()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, logging.Default())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // best effort after delete

	store := identity.NewStore(db)
	for _, key := range cfg.Identity.Keys {
		if err := store.Delete(ctx, key); err != nil {
			return err
		}
	}
	fmt.Fprintln(g.Out(), identity.Unknown)
	return nil
}

// ─── permissions ─────────────────────────────────────────────────────────────

type PermissionsCmd struct {
	Request bool `help:"Also open the battery optimization settings screen for the agent."`
}

func (c *PermissionsCmd) Run(g *Globals) error {
	ctx := g.Context()
	cfg, err := g.LoadOrDefault()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, version)
	h, err := openHost(ctx, cfg, log)
	if err != nil {
		return err
	}
	negotiator := newNegotiator(cfg, h, nil, log)

	state := negotiator.QueryStatus(ctx)
	out, err := json.MarshalIndent(struct {
		Package         string   `json:"package"`
		PlatformVersion int      `json:"platform_version"`
		State           any      `json:"state"`
		Missing         []string `json:"missing"`
	}{
		Package:         cfg.Agent.Package,
		PlatformVersion: h.platformVersion,
		State:           state,
		Missing:         state.Missing(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding permission state: %w", err)
	}
	fmt.Fprintln(g.Out(), string(out))

	if c.Request {
		negotiator.RequestManualExemption(ctx)
	}
	return nil
}

// ─── version ─────────────────────────────────────────────────────────────────

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.Out(), "trackguard %s (commit %s, built %s) %s/%s %s\n",
		version, commit, date, runtime.GOOS, runtime.GOARCH, runtime.Version())
	return nil
}
