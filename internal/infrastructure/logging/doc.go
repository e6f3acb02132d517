// Package logging provides structured logging for trackguard.
//
// Both process roles log through log/slog: JSON lines in production, text
// when a person is reading the console. The agent's own log lines, relayed
// by the "log*" commands, pass through Tagged at their original level,
// including a VERBOSE level below debug.
//
// # Configuration
//
//	logging:
//	  level: "info"      # verbose, debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("supervisor started", "target", "main")
//	logger.Tagged(ctx, logging.LevelVerbose, "TraccarClient", "fix acquired")
//
// # Security
//
// Never log secrets, tokens or passwords. The MQTT password and the
// InfluxDB token are read from the environment and must stay out of log fields.
package logging
