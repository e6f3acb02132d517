// trackguard keeps a location-tracking agent alive across reboots, updates,
// task removal and process kills.
//
// The binary has two long-running roles. "agent" hosts the tracked process
// lifecycle: permission checks, identity, management channel and the
// command spool. "supervise" runs the supervisor tree that relaunches the
// agent when the host reports it gone. The remaining subcommands are
// helpers the host environment calls to feed events and commands in.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/nerrad567/trackguard/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Globals holds flags and state shared by every subcommand.
type Globals struct {
	Config string `help:"Path to the configuration file." env:"TRACKGUARD_CONFIG" default:"configs/config.yaml" type:"path"`

	ctx context.Context
	out io.Writer
}

// Context returns the process context, cancelled on SIGINT or SIGTERM.
func (g *Globals) Context() context.Context {
	if g.ctx == nil {
		return context.Background()
	}
	return g.ctx
}

// Out is where subcommands print their results.
func (g *Globals) Out() io.Writer {
	if g.out == nil {
		return os.Stdout
	}
	return g.out
}

// Load reads the configuration file. The long-running roles require it.
func (g *Globals) Load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault reads the configuration file, falling back to the built-in
// defaults when it does not exist. Helper subcommands use this so they work
// on a host that only sets TRACKGUARD_* variables.
func (g *Globals) LoadOrDefault() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// CLI is the command tree.
type CLI struct {
	Globals

	Agent       AgentCmd       `cmd:"" group:"roles"   help:"Run the tracked agent lifecycle (activation, resume on SIGHUP, teardown)."`
	Supervise   SuperviseCmd   `cmd:"" group:"roles"   help:"Run the supervisor tree that keeps the agent alive."`
	Emit        EmitCmd        `cmd:"" group:"host"    help:"Feed a system event into the event spool and, for broadcasts, start the supervisor."`
	Call        CallCmd        `cmd:"" group:"host"    help:"Invoke a named command on the running agent."`
	Identity    IdentityCmd    `cmd:"" group:"host"    help:"Show, set or clear the persisted device identity."`
	Permissions PermissionsCmd `cmd:"" group:"observe" help:"Print the current permission state as JSON."`
	Version     VersionCmd     `cmd:"" group:"observe" help:"Print version information."`
}

func kongOptions(globals *Globals) []kong.Option {
	return []kong.Option{
		kong.Name("trackguard"),
		kong.Description("trackguard - process survival supervisor for a location-tracking agent"),
		kong.UsageOnError(),
		kong.Bind(globals),
		kong.ExplicitGroups([]kong.Group{
			{Key: "roles", Title: "Roles"},
			{Key: "host", Title: "Host integration"},
			{Key: "observe", Title: "Diagnostics"},
		}),
	}
}

func main() {
	// Cancelled on Ctrl+C and SIGTERM; the roles tear down on cancellation.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	cli.ctx = ctx

	kctx := kong.Parse(&cli, kongOptions(&cli.Globals)...)
	err := kctx.Run()
	kctx.FatalIfErrorf(err)
}
