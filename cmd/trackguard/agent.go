package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/trackguard/internal/identity"
	"github.com/nerrad567/trackguard/internal/infrastructure/config"
	"github.com/nerrad567/trackguard/internal/infrastructure/database"
	"github.com/nerrad567/trackguard/internal/infrastructure/influxdb"
	"github.com/nerrad567/trackguard/internal/infrastructure/logging"
	"github.com/nerrad567/trackguard/internal/lifecycle"
	"github.com/nerrad567/trackguard/internal/mdm"
	"github.com/nerrad567/trackguard/internal/permission"
	"github.com/nerrad567/trackguard/internal/process"
	"github.com/nerrad567/trackguard/internal/spool"
	"github.com/nerrad567/trackguard/internal/supervisor"
	"github.com/nerrad567/trackguard/migrations"
)

// settingsKey is the preference the last management configuration is kept under.
const settingsKey = "trackguard.management_settings"

// AgentCmd runs the main tracked process lifecycle.
type AgentCmd struct{}

func (c *AgentCmd) Run(g *Globals) error {
	ctx := g.Context()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting trackguard agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := g.Load()
	if err != nil {
		return err
	}
	log = logging.New(cfg.Logging, version).With("role", "agent")
	log.Info("configuration loaded", "path", g.Config, "host", cfg.Host.Type)

	h, err := openHost(ctx, cfg, log)
	if err != nil {
		return err
	}
	lease, err := h.claim(process.TargetMain)
	if err != nil {
		return fmt.Errorf("claiming agent role: %w", err)
	}
	defer func() {
		if releaseErr := lease.Release(); releaseErr != nil {
			log.Error("error releasing agent lease", "error", releaseErr)
		}
	}()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	influx := connectInflux(cfg, "agent", log)
	if influx != nil {
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	store := identity.NewStore(db)
	resolver := identity.NewResolver(store, cfg.Identity.Keys)
	resolver.SetLogger(log)

	var snapshot func(permission.State)
	if influx != nil {
		snapshot = func(s permission.State) {
			influx.WritePermissionSnapshot(cfg.Agent.Package, s.FineLocationGranted, s.BackgroundLocationGranted, s.PowerExemptionGranted)
		}
	}
	negotiator := newNegotiator(cfg, h, snapshot, log.With("component", "permission"))

	// The agent's own instance ensures the supervisor process.
	opts := supervisor.Options{
		EnsureTarget:         process.TargetSupervisor,
		PlatformVersion:      h.platformVersion,
		ForegroundMinVersion: cfg.Supervisor.ForegroundMinVersion,
		Logger:               log.With("component", "supervisor"),
	}
	if influx != nil {
		opts.Recorder = supervisor.PointRecorder{Writer: influx}
	}
	launcher := supervisor.NewGuardedLauncher(h.launcher, supervisor.GuardConfig{
		MaxFailures: cfg.Supervisor.Breaker.MaxFailures,
		Cooldown:    cfg.BreakerCooldown(),
	}, log)
	sup := supervisor.New(launcher, opts)

	var channel mdm.Channel = mdm.Unmanaged{}
	var mqttChannel *mdm.MQTTChannel
	if cfg.MQTT.Enabled {
		mqttChannel = mdm.NewMQTTChannel(cfg.MQTT, mdm.DialMQTT(log), nil)
		mqttChannel.SetLogger(log.With("component", "mdm"))
		channel = mqttChannel
	}

	coord := lifecycle.NewCoordinator(lifecycle.Deps{
		Identity:    resolver,
		Permissions: negotiator,
		Supervisor:  sup,
		Channel:     channel,
		Applier:     &preferenceApplier{store: store},
		Logger:      log.With("component", "lifecycle"),
	})
	if mqttChannel != nil {
		mqttChannel.SetHandler(coord)
	}

	commands := lifecycle.NewCommands(resolver, log, cfg.Agent.LogTag)
	commands.SetLogger(log.With("component", "commands"))

	inbox, err := spool.Open(cfg.Spool.CommandsDir)
	if err != nil {
		return fmt.Errorf("opening command spool: %w", err)
	}
	inbox.SetLogger(log.With("component", "spool"))

	spoolDone := make(chan error, 1)
	go func() {
		spoolDone <- inbox.Run(ctx, commands.Handle)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	if err := healthCheck(ctx, db, influx); err != nil {
		log.Warn("health check failed", "error", err)
	}

	coord.Activate(ctx)
	log.Info("trackguard agent running", "platform_version", h.platformVersion)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			coord.Teardown(context.WithoutCancel(ctx))
			if mqttChannel != nil {
				mqttChannel.Wait()
			}
			<-spoolDone
			log.Info("trackguard agent stopped")
			return nil

		case <-hup:
			coord.Resume(ctx)

		case err := <-spoolDone:
			coord.Teardown(context.WithoutCancel(ctx))
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("command spool: %w", err)
			}
			return nil
		}
	}
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck,gosec // error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("database ready", "path", db.Path())
	return db, nil
}

// healthCheck verifies the local store and, when enabled, the diagnostics sink.
func healthCheck(ctx context.Context, db *database.DB, influx *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influx != nil {
		if err := influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// connectInflux returns nil when the diagnostics sink is disabled or
// unreachable. Supervision never depends on it.
func connectInflux(cfg *config.Config, role string, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		return nil
	}
	client, err := influxdb.Connect(cfg.InfluxDB, map[string]string{
		"package": cfg.Agent.Package,
		"role":    role,
	})
	if err != nil {
		log.Warn("InfluxDB unavailable, diagnostics disabled", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Warn("InfluxDB write failed", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	return client
}

// preferenceApplier keeps the last management configuration in the
// preference store so the tracked application can read it offline.
type preferenceApplier struct {
	store *identity.Store
}

func (a *preferenceApplier) ApplySettings(ctx context.Context, _ string, settings []byte) error {
	return a.store.Set(ctx, settingsKey, string(settings))
}
