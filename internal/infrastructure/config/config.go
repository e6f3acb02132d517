package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Host back-end types.
const (
	HostAndroid = "android"
	HostExec    = "exec"
)

// Restart policy names accepted in supervisor.restart_policy.
const (
	RestartAlways = "always"
	RestartNever  = "never"
)

// Config is the root configuration structure for trackguard.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Agent       AgentConfig       `yaml:"agent"`
	Host        HostConfig        `yaml:"host"`
	Supervisor  SupervisorConfig  `yaml:"supervisor"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Identity    IdentityConfig    `yaml:"identity"`
	Spool       SpoolConfig       `yaml:"spool"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AgentConfig describes the tracked application.
type AgentConfig struct {
	// Package is the application package name the OS knows the agent by.
	Package string `yaml:"package"`

	// LogTag is the tag used for pass-through log lines that do not carry one.
	LogTag string `yaml:"log_tag"`

	// PlatformVersion pins the OS API level. 0 means detect from the host.
	PlatformVersion int `yaml:"platform_version"`
}

// HostConfig selects and configures the OS action surface.
type HostConfig struct {
	// Type is "android" or "exec".
	Type    string            `yaml:"type"`
	Android AndroidHostConfig `yaml:"android"`
	Exec    ExecHostConfig    `yaml:"exec"`
}

// AndroidHostConfig names the components started through the activity manager.
type AndroidHostConfig struct {
	// MainComponent is the tracked component, e.g. "org.traccar.client/.MainActivity".
	MainComponent string `yaml:"main_component"`

	// MainKind is "activity" or "service".
	MainKind string `yaml:"main_kind"`

	// SupervisorComponent is the supervisor service component.
	SupervisorComponent string `yaml:"supervisor_component"`
}

// ExecHostConfig configures plain process launching.
type ExecHostConfig struct {
	// RunDir holds the pidfile registry.
	RunDir     string        `yaml:"run_dir"`
	Main       CommandConfig `yaml:"main"`
	Supervisor CommandConfig `yaml:"supervisor"`
}

// CommandConfig is a launchable command line.
type CommandConfig struct {
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	WorkDir string   `yaml:"work_dir"`
}

// SupervisorConfig contains supervision settings.
type SupervisorConfig struct {
	// RestartPolicy is declared at registration: "always" or "never".
	RestartPolicy string `yaml:"restart_policy"`

	// ForegroundMinVersion is the platform version from which launches use
	// foreground-privileged mode.
	ForegroundMinVersion int `yaml:"foreground_min_version"`

	Breaker BreakerConfig `yaml:"breaker"`
	Tree    TreeConfig    `yaml:"tree"`
}

// BreakerConfig guards the launcher against relaunch storms.
type BreakerConfig struct {
	MaxFailures     uint32 `yaml:"max_failures"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
}

// TreeConfig holds suture tree tuning.
type TreeConfig struct {
	FailureThreshold float64 `yaml:"failure_threshold"`
	FailureDecay     float64 `yaml:"failure_decay"`
	FailureBackoff   int     `yaml:"failure_backoff_seconds"`
	ShutdownTimeout  int     `yaml:"shutdown_timeout_seconds"`
}

// PermissionsConfig contains permission negotiation settings.
type PermissionsConfig struct {
	BackgroundLocationMinVersion int `yaml:"background_location_min_version"`
	PowerExemptionMinVersion     int `yaml:"power_exemption_min_version"`

	// Managed selects the privileged provider (device-management authority present).
	Managed bool `yaml:"managed"`

	// Authority names the management product for remediation hints.
	Authority string `yaml:"authority"`

	// Granted lists permissions reported as held by the exec host.
	Granted []string `yaml:"granted"`
}

// IdentityConfig lists the preference keys consulted for the device identity, in order.
type IdentityConfig struct {
	Keys []string `yaml:"keys"`
}

// SpoolConfig contains the drop directories fed by the host environment.
type SpoolConfig struct {
	EventsDir   string `yaml:"events_dir"`
	CommandsDir string `yaml:"commands_dir"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains management channel broker settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains the optional diagnostics sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	// Listen is the address for /metrics. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TRACKGUARD_SECTION_KEY
// For example: TRACKGUARD_DATABASE_PATH, TRACKGUARD_HOST_TYPE
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, with environment overrides applied.
// Used by helper subcommands when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
// Thresholds follow the Android API levels where each restriction appeared.
func defaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Package: "org.traccar.client",
			LogTag:  "TraccarClient",
		},
		Host: HostConfig{
			Type: HostAndroid,
			Android: AndroidHostConfig{
				MainComponent:       "org.traccar.client/.MainActivity",
				MainKind:            "activity",
				SupervisorComponent: "org.traccar.client/.RestartService",
			},
			Exec: ExecHostConfig{
				RunDir: "./data/run",
			},
		},
		Supervisor: SupervisorConfig{
			RestartPolicy:        RestartAlways,
			ForegroundMinVersion: 26,
			Breaker: BreakerConfig{
				MaxFailures:     5,
				CooldownSeconds: 60,
			},
			Tree: TreeConfig{
				FailureThreshold: 5,
				FailureDecay:     30,
				FailureBackoff:   15,
				ShutdownTimeout:  10,
			},
		},
		Permissions: PermissionsConfig{
			BackgroundLocationMinVersion: 29,
			PowerExemptionMinVersion:     23,
			Authority:                    "Headwind MDM",
		},
		Identity: IdentityConfig{
			Keys: []string{"flutter.hardware_unique_id", "flutter.id"},
		},
		Spool: SpoolConfig{
			EventsDir:   "./data/spool/events",
			CommandsDir: "./data/spool/commands",
		},
		Database: DatabaseConfig{
			Path:        "./data/trackguard.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "trackguard",
			},
			QoS:         1,
			TopicPrefix: "trackguard",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRACKGUARD_HOST_TYPE"); v != "" {
		cfg.Host.Type = v
	}
	if v := os.Getenv("TRACKGUARD_PLATFORM_VERSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.PlatformVersion = n
		}
	}
	if v := os.Getenv("TRACKGUARD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TRACKGUARD_SPOOL_DIR"); v != "" {
		cfg.Spool.EventsDir = v + "/events"
		cfg.Spool.CommandsDir = v + "/commands"
	}

	// MQTT
	if v := os.Getenv("TRACKGUARD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TRACKGUARD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TRACKGUARD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TRACKGUARD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("TRACKGUARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Agent.Package == "" {
		errs = append(errs, "agent.package is required")
	}
	if c.Agent.PlatformVersion < 0 {
		errs = append(errs, "agent.platform_version must not be negative")
	}

	switch c.Host.Type {
	case HostAndroid:
		if c.Host.Android.MainComponent == "" || c.Host.Android.SupervisorComponent == "" {
			errs = append(errs, "host.android main_component and supervisor_component are required")
		}
		switch c.Host.Android.MainKind {
		case "activity", "service":
		default:
			errs = append(errs, "host.android.main_kind must be activity or service")
		}
	case HostExec:
		if c.Host.Exec.RunDir == "" {
			errs = append(errs, "host.exec.run_dir is required")
		}
		if c.Host.Exec.Main.Binary == "" || c.Host.Exec.Supervisor.Binary == "" {
			errs = append(errs, "host.exec main.binary and supervisor.binary are required")
		}
	default:
		errs = append(errs, fmt.Sprintf("host.type must be %q or %q", HostAndroid, HostExec))
	}

	switch c.Supervisor.RestartPolicy {
	case RestartAlways, RestartNever:
	default:
		errs = append(errs, "supervisor.restart_policy must be always or never")
	}

	if len(c.Identity.Keys) == 0 {
		errs = append(errs, "identity.keys must list at least one preference key")
	}

	if c.Spool.EventsDir == "" || c.Spool.CommandsDir == "" {
		errs = append(errs, "spool.events_dir and spool.commands_dir are required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BreakerCooldown returns the breaker open-state duration.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Supervisor.Breaker.CooldownSeconds) * time.Second
}

// TreeBackoff returns the suture failure backoff.
func (c *Config) TreeBackoff() time.Duration {
	return time.Duration(c.Supervisor.Tree.FailureBackoff) * time.Second
}

// TreeShutdownTimeout returns the suture shutdown timeout.
func (c *Config) TreeShutdownTimeout() time.Duration {
	return time.Duration(c.Supervisor.Tree.ShutdownTimeout) * time.Second
}
