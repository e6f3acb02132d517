package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	fileSuffix = ".json"
	tempPrefix = "."
)

// Handler processes one spooled payload. The file is removed afterwards
// whatever the handler returns; a returned error is only logged.
type Handler func(ctx context.Context, payload []byte) error

// Logger defines the logging interface for the spool.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Spool is a drop directory.
type Spool struct {
	dir    string
	logger Logger
}

// Open creates dir if needed.
func Open(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	return &Spool{dir: dir, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for the spool.
func (s *Spool) SetLogger(logger Logger) {
	s.logger = logger
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Write JSON-encodes v into a new spool file and returns its path.
// File names sort in write order.
func (s *Spool) Write(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding spool entry: %w", err)
	}

	name := fmt.Sprintf("%020d-%s%s", time.Now().UnixNano(), uuid.NewString(), fileSuffix)
	final := filepath.Join(s.dir, name)
	tmp := filepath.Join(s.dir, tempPrefix+name+".tmp")

	if err := os.WriteFile(tmp, payload, filePermissions); err != nil {
		return "", fmt.Errorf("writing spool entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp) //nolint:errcheck // best effort cleanup
		return "", fmt.Errorf("publishing spool entry: %w", err)
	}
	return final, nil
}

// Pending returns the entries waiting in the spool, oldest first.
func (s *Spool) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading spool: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isEntry(e.Name()) {
			names = append(names, filepath.Join(s.dir, e.Name()))
		}
	}
	slices.Sort(names)
	return names, nil
}

// Run drains pending entries and then handles new ones as they appear,
// until ctx is cancelled. Entries are handled one at a time.
func (s *Spool) Run(ctx context.Context, handle Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating spool watcher: %w", err)
	}
	defer watcher.Close()

	// Watch before draining so nothing written in between is missed.
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watching spool %s: %w", s.dir, err)
	}

	pending, err := s.Pending()
	if err != nil {
		return err
	}
	for _, path := range pending {
		s.consume(ctx, path, handle)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) || !isEntry(filepath.Base(ev.Name)) {
				continue
			}
			s.consume(ctx, ev.Name, handle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("spool watcher error", "dir", s.dir, "error", err)
			// Overflow drops events; rescan so nothing is stranded.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				if pending, err := s.Pending(); err == nil {
					for _, path := range pending {
						s.consume(ctx, path, handle)
					}
				}
			}
		}
	}
}

func (s *Spool) consume(ctx context.Context, path string, handle Handler) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Already consumed during the initial drain.
		return
	}
	if err != nil {
		s.logger.Error("reading spool entry", "path", path, "error", err)
		return
	}

	if err := handle(ctx, payload); err != nil {
		s.logger.Warn("spool entry rejected", "path", path, "error", err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("removing spool entry", "path", path, "error", err)
	}
}

func isEntry(name string) bool {
	return strings.HasSuffix(name, fileSuffix) && !strings.HasPrefix(name, tempPrefix)
}
