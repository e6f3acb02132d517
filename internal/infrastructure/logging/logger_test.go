package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/trackguard/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		logger := New(config.LoggingConfig{Level: "debug", Format: format, Output: "stderr"}, "1.0.0")
		if logger == nil {
			t.Fatalf("New(%s) returned nil", format)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"verbose", LevelVerbose},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	logger := Default()
	child := logger.With("component", "supervisor")

	if child == nil {
		t.Fatal("expected non-nil child logger")
	}
	if child == logger {
		t.Error("expected child logger to be different from parent")
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_OutputContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)

	logger.Info("test message", "key", "value")

	entry := decode(t, &buf)
	if entry["service"] != "trackguard" {
		t.Errorf("service = %v, want trackguard", entry["service"])
	}
	if entry["version"] != "test" {
		t.Errorf("version = %v, want test", entry["version"])
	}
	if entry["msg"] != "test message" || entry["key"] != "value" {
		t.Errorf("entry = %v, want msg and key fields", entry)
	}
}

func TestLogger_Tagged(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "verbose", Format: "json"}, "test", &buf)

	logger.Tagged(context.Background(), LevelVerbose, "TraccarClient", "gps fix")

	entry := decode(t, &buf)
	if entry["tag"] != "TraccarClient" {
		t.Errorf("tag = %v, want TraccarClient", entry["tag"])
	}
	if entry["level"] != "VERBOSE" {
		t.Errorf("level = %v, want VERBOSE", entry["level"])
	}
	if entry["msg"] != "gps fix" {
		t.Errorf("msg = %v, want gps fix", entry["msg"])
	}
}

func TestLogger_VerboseFilteredAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, "test", &buf)

	logger.Tagged(context.Background(), LevelVerbose, "TraccarClient", "hidden")
	logger.Debug("also hidden")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("expected verbose and debug lines to be filtered, got %q", buf.String())
	}
}
