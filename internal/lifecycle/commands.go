package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerrad567/trackguard/internal/infrastructure/logging"
)

// Method names accepted by Commands.
const (
	MethodSetDeviceID = "setDeviceId"
	MethodLogInfo     = "logInfo"
	MethodLogDebug    = "logDebug"
	MethodLogWarning  = "logWarning"
	MethodLogError    = "logError"
	MethodLogVerbose  = "logVerbose"
)

var logLevels = map[string]slog.Level{
	MethodLogInfo:    slog.LevelInfo,
	MethodLogDebug:   slog.LevelDebug,
	MethodLogWarning: slog.LevelWarn,
	MethodLogError:   slog.LevelError,
	MethodLogVerbose: logging.LevelVerbose,
}

// Call is one named operation invoked by the upper application layer.
type Call struct {
	ID     string            `json:"id,omitempty"`
	Method string            `json:"method"`
	Args   map[string]string `json:"args,omitempty"`
	At     time.Time         `json:"at,omitzero"`
}

// IdentitySetter overwrites the cached device identity.
type IdentitySetter interface {
	Set(id string) bool
}

// TaggedLogger writes a pass-through log line at an explicit level.
type TaggedLogger interface {
	Tagged(ctx context.Context, level slog.Level, tag, msg string)
}

// Commands dispatches cross-layer calls.
type Commands struct {
	identity   IdentitySetter
	out        TaggedLogger
	defaultTag string
	logger     Logger
}

// NewCommands creates a dispatcher. defaultTag is used for log calls
// that carry no tag.
func NewCommands(identity IdentitySetter, out TaggedLogger, defaultTag string) *Commands {
	return &Commands{
		identity:   identity,
		out:        out,
		defaultTag: defaultTag,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher's own messages.
func (c *Commands) SetLogger(logger Logger) {
	c.logger = logger
}

// Invoke runs call. Unknown methods return ErrNotImplemented.
func (c *Commands) Invoke(ctx context.Context, call Call) error {
	if call.Method == MethodSetDeviceID {
		if c.identity.Set(call.Args["deviceId"]) {
			c.logger.Info("device id cached from upper layer", "device_id", call.Args["deviceId"])
		}
		return nil
	}

	level, ok := logLevels[call.Method]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotImplemented, call.Method)
	}

	tag := call.Args["tag"]
	if tag == "" {
		tag = c.defaultTag
	}
	c.out.Tagged(ctx, level, tag, call.Args["message"])
	return nil
}

// Handle decodes a JSON-encoded Call and invokes it.
func (c *Commands) Handle(ctx context.Context, payload []byte) error {
	var call Call
	if err := json.Unmarshal(payload, &call); err != nil {
		return fmt.Errorf("%w: %w", ErrBadArguments, err)
	}
	if call.Method == "" {
		return fmt.Errorf("%w: method missing", ErrBadArguments)
	}
	return c.Invoke(ctx, call)
}
