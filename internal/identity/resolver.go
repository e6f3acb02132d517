package identity

import (
	"context"
	"errors"
	"sync/atomic"
)

// Unknown is reported while no identifier can be resolved. It is never cached.
const Unknown = "Unknown"

// DefaultKeys are the preference keys consulted in order.
var DefaultKeys = []string{"flutter.hardware_unique_id", "flutter.id"}

// Reader looks up preference values.
type Reader interface {
	Get(ctx context.Context, key string) (string, error)
}

// Logger defines the logging interface for the resolver.
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

// Resolver caches the device identifier. Safe for concurrent use;
// readers never block writers and the last Set wins.
type Resolver struct {
	store  Reader
	keys   []string
	cached atomic.Pointer[string]
	logger Logger
}

// NewResolver creates a resolver over store. Empty keys means DefaultKeys.
func NewResolver(store Reader, keys []string) *Resolver {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	return &Resolver{store: store, keys: keys, logger: noopLogger{}}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// Identity returns the cached identifier, reading the store only while
// nothing is cached. It returns Unknown rather than failing.
func (r *Resolver) Identity(ctx context.Context) string {
	if id := r.cached.Load(); id != nil {
		return *id
	}

	id, ok := r.read(ctx)
	if !ok {
		return Unknown
	}

	// A concurrent Set may have landed while the store was read; it wins.
	r.cached.CompareAndSwap(nil, &id)
	return *r.cached.Load()
}

// Set overwrites the cached identifier. Empty ids are ignored.
func (r *Resolver) Set(id string) bool {
	if id == "" {
		return false
	}
	r.cached.Store(&id)
	return true
}

// Cached reports the cached identifier without touching the store.
func (r *Resolver) Cached() (string, bool) {
	if id := r.cached.Load(); id != nil {
		return *id, true
	}
	return "", false
}

func (r *Resolver) read(ctx context.Context) (string, bool) {
	if r.store == nil {
		return "", false
	}
	for _, key := range r.keys {
		v, err := r.store.Get(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			r.logger.Warn("reading device identity failed", "key", key, "error", err)
			continue
		case v != "":
			return v, true
		}
	}
	return "", false
}
