package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/trackguard/internal/android"
	"github.com/nerrad567/trackguard/internal/infrastructure/config"
	"github.com/nerrad567/trackguard/internal/infrastructure/logging"
	"github.com/nerrad567/trackguard/internal/permission"
	"github.com/nerrad567/trackguard/internal/process"
)

// host is the OS action surface selected by host.type.
type host struct {
	launcher        process.Launcher
	source          permission.Source
	platformVersion int

	// registry is only set on exec hosts, where roles hold pidfile leases.
	registry *process.Registry
}

func openHost(ctx context.Context, cfg *config.Config, log *logging.Logger) (*host, error) {
	switch cfg.Host.Type {
	case config.HostAndroid:
		mainKind := android.KindActivity
		if cfg.Host.Android.MainKind == string(android.KindService) {
			mainKind = android.KindService
		}
		dev := android.NewDevice(android.ExecRunner{}, cfg.Agent.Package, map[process.Target]android.Component{
			process.TargetMain:       {Name: cfg.Host.Android.MainComponent, Kind: mainKind},
			process.TargetSupervisor: {Name: cfg.Host.Android.SupervisorComponent, Kind: android.KindService},
		})
		dev.SetLogger(log)

		h := &host{launcher: dev, source: dev, platformVersion: cfg.Agent.PlatformVersion}
		if h.platformVersion == 0 {
			v, err := dev.PlatformVersion(ctx)
			if err != nil {
				log.Warn("platform version unknown, assuming modern", "error", err)
			} else {
				h.platformVersion = v
			}
		}
		return h, nil

	case config.HostExec:
		registry, err := process.NewRegistry(cfg.Host.Exec.RunDir)
		if err != nil {
			return nil, fmt.Errorf("opening process registry: %w", err)
		}
		launcher := process.NewExecLauncher(registry, map[process.Target]process.Command{
			process.TargetMain:       command(cfg.Host.Exec.Main),
			process.TargetSupervisor: command(cfg.Host.Exec.Supervisor),
		})
		launcher.SetLogger(log)

		return &host{
			launcher:        launcher,
			source:          permission.NewStaticSource(cfg.Permissions.Granted),
			platformVersion: cfg.Agent.PlatformVersion,
			registry:        registry,
		}, nil
	}
	return nil, fmt.Errorf("unsupported host type %q", cfg.Host.Type)
}

// claim takes the single-instance lease for t. Android enforces single
// instances itself, so there the lease is nil.
func (h *host) claim(t process.Target) (*process.Lease, error) {
	if h.registry == nil {
		return nil, nil
	}
	return h.registry.Claim(t)
}

func command(c config.CommandConfig) process.Command {
	return process.Command{
		Binary:  c.Binary,
		Args:    c.Args,
		Env:     c.Env,
		WorkDir: c.WorkDir,
	}
}

// newNegotiator builds the permission negotiator for the configured provider.
func newNegotiator(cfg *config.Config, h *host, snapshot func(permission.State), log *logging.Logger) *permission.Negotiator {
	var provider permission.PrivilegeProvider = permission.ObserveOnly{}
	if cfg.Permissions.Managed {
		provider = permission.Privileged{Authority: cfg.Permissions.Authority}
	}
	return permission.NewNegotiator(h.source, permission.Options{
		Package:                      cfg.Agent.Package,
		PlatformVersion:              h.platformVersion,
		BackgroundLocationMinVersion: cfg.Permissions.BackgroundLocationMinVersion,
		PowerExemptionMinVersion:     cfg.Permissions.PowerExemptionMinVersion,
		Provider:                     provider,
		Snapshot:                     snapshot,
		Logger:                       log,
	})
}
