package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/trackguard/internal/infrastructure/config"
)

// LevelVerbose sits below debug. Agent pass-through lines at verbose level
// land here so they can be filtered separately from trackguard's own debug output.
const LevelVerbose = slog.Level(-8)

// Logger is the slog.Logger every trackguard component logs through. It
// satisfies the small Debug/Info/Warn/Error interfaces the packages declare,
// and is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section: handler format, minimum
// level and destination. Every line carries service=trackguard and version.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter is New with an explicit destination. Output in cfg is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: renameVerbose,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "trackguard"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel maps a configured level name onto slog. "trace" is accepted as
// an alias for verbose; anything unrecognised is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "verbose", "trace":
		return LevelVerbose
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func renameVerbose(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelVerbose {
		a.Value = slog.StringValue("VERBOSE")
	}
	return a
}

// Tagged writes a pass-through line on behalf of the tracked agent.
// The tag is carried as its own attribute so agent output stays
// distinguishable from trackguard's own lines.
func (l *Logger) Tagged(ctx context.Context, level slog.Level, tag, msg string) {
	l.Logger.Log(ctx, level, msg, "tag", tag)
}

// With returns a child logger carrying args on every line, typically
// role=agent|supervisor or component=<package>.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the JSON/info/stdout logger used until the config file has
// been read, and by helper subcommands that never load one.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
