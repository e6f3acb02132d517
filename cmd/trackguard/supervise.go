package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/trackguard/internal/event"
	"github.com/nerrad567/trackguard/internal/infrastructure/logging"
	"github.com/nerrad567/trackguard/internal/process"
	"github.com/nerrad567/trackguard/internal/spool"
	"github.com/nerrad567/trackguard/internal/supervisor"
)

const metricsShutdownTimeout = 5 * time.Second

// SuperviseCmd runs the supervisor process.
type SuperviseCmd struct{}

func (c *SuperviseCmd) Run(g *Globals) error {
	ctx := g.Context()

	log := logging.Default()
	log.Info("starting trackguard supervisor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := g.Load()
	if err != nil {
		return err
	}
	log = logging.New(cfg.Logging, version).With("role", "supervisor")
	log.Info("configuration loaded", "path", g.Config, "host", cfg.Host.Type)

	policy, err := process.ParseRestartPolicy(cfg.Supervisor.RestartPolicy)
	if err != nil {
		return err
	}

	h, err := openHost(ctx, cfg, log)
	if err != nil {
		return err
	}
	lease, err := h.claim(process.TargetSupervisor)
	if err != nil {
		return fmt.Errorf("claiming supervisor role: %w", err)
	}
	defer func() {
		if releaseErr := lease.Release(); releaseErr != nil {
			log.Error("error releasing supervisor lease", "error", releaseErr)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := supervisor.NewMetrics(registry)

	recorder := supervisor.MultiRecorder{metrics}
	if influx := connectInflux(cfg, "supervisor", log); influx != nil {
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		recorder = append(recorder, supervisor.PointRecorder{Writer: influx})
	}

	launcher := supervisor.NewGuardedLauncher(h.launcher, supervisor.GuardConfig{
		MaxFailures: cfg.Supervisor.Breaker.MaxFailures,
		Cooldown:    cfg.BreakerCooldown(),
	}, log)

	bus := event.NewBus(log.Logger)
	defer func() {
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing event bus", "error", closeErr)
		}
	}()

	instanceLog := log.With("component", "supervisor")
	svc := supervisor.NewService(process.Registration{Name: "supervisor", Policy: policy}, bus, func() *supervisor.Supervisor {
		return supervisor.New(launcher, supervisor.Options{
			EnsureTarget:         process.TargetMain,
			PlatformVersion:      h.platformVersion,
			ForegroundMinVersion: cfg.Supervisor.ForegroundMinVersion,
			Recorder:             recorder,
			Logger:               instanceLog,
		})
	})
	svc.SetLogger(instanceLog)
	svc.SetObserver(metrics)

	events, err := spool.Open(cfg.Spool.EventsDir)
	if err != nil {
		return fmt.Errorf("opening event spool: %w", err)
	}
	events.SetLogger(log.With("component", "spool"))

	tree := supervisor.NewTree(log.Logger, supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.Tree.FailureThreshold,
		FailureDecay:     cfg.Supervisor.Tree.FailureDecay,
		FailureBackoff:   cfg.TreeBackoff(),
		ShutdownTimeout:  cfg.TreeShutdownTimeout(),
	})
	tree.Add(svc)
	tree.Add(&spoolFeeder{spool: events, bus: bus, logger: log})
	if cfg.Metrics.Listen != "" {
		tree.Add(&metricsServer{
			addr:    cfg.Metrics.Listen,
			handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			logger:  log,
		})
		log.Info("metrics endpoint enabled", "listen", cfg.Metrics.Listen)
	}

	log.Info("trackguard supervisor running",
		"platform_version", h.platformVersion,
		"mode", process.ModeFor(h.platformVersion, cfg.Supervisor.ForegroundMinVersion),
		"restart_policy", policy,
	)

	err = tree.Serve(ctx)
	log.Info("trackguard supervisor stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}

// spoolFeeder moves events written by "trackguard emit" onto the bus.
type spoolFeeder struct {
	spool  *spool.Spool
	bus    *event.Bus
	logger *logging.Logger
}

func (f *spoolFeeder) String() string { return "event-spool" }

func (f *spoolFeeder) Serve(ctx context.Context) error {
	return f.spool.Run(ctx, f.forward)
}

func (f *spoolFeeder) forward(_ context.Context, payload []byte) error {
	var evt event.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("decoding spooled event: %w", err)
	}
	if !evt.Kind.Valid() {
		return fmt.Errorf("%w: %q", event.ErrUnknownKind, evt.Kind)
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	f.logger.Debug("event received", "id", evt.ID, "kind", evt.Kind, "source", evt.Source)
	return f.bus.Publish(evt)
}

// metricsServer serves /metrics for the lifetime of the tree.
type metricsServer struct {
	addr    string
	handler http.Handler
	logger  *logging.Logger
}

func (m *metricsServer) String() string { return "metrics" }

func (m *metricsServer) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.handler)

	srv := &http.Server{
		Addr:              m.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			m.logger.Warn("metrics server shutdown", "error", err)
		}
		return ctx.Err()
	}
}
