package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	registryDirPermissions  = 0750
	registryFilePermissions = 0640
)

// Registry is a pidfile directory recording which process currently holds
// each Target. Hosts whose OS does not treat "start an already running
// process" as a no-op use it to make relaunch idempotent.
//
// Layout: <dir>/<target>.pid holds the decimal pid, <dir>/<target>.lock is
// flock'ed by the live holder for its whole lifetime.
type Registry struct {
	dir string
}

// NewRegistry creates the registry directory if needed.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, registryDirPermissions); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	return &Registry{dir: dir}, nil
}

func (r *Registry) pidPath(t Target) string {
	return filepath.Join(r.dir, string(t)+".pid")
}

func (r *Registry) lockPath(t Target) string {
	return filepath.Join(r.dir, string(t)+".lock")
}

// PID returns the recorded pid for t, or 0 when nothing is recorded.
func (r *Registry) PID(t Target) (int, error) {
	data, err := os.ReadFile(r.pidPath(t))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading pidfile: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pidfile %s: %w", r.pidPath(t), err)
	}
	return pid, nil
}

// Alive reports whether t has a live holder. The holder's flock on
// <target>.lock is authoritative: a pidfile left behind by a killed
// process, or naming a pid the kernel has since reused, has no lock
// holder and is removed. Signal 0 is only consulted when the lock cannot
// be probed.
func (r *Registry) Alive(t Target) (int, bool) {
	pid, pidErr := r.PID(t)

	held, err := r.lockHeld(t)
	if err != nil {
		if pidErr != nil || pid <= 0 {
			return 0, false
		}
		return pid, processAlive(pid)
	}
	if held {
		return pid, true
	}

	if pid > 0 || pidErr != nil {
		r.removeStale(t, pid)
	}
	return 0, false
}

// lockHeld probes the lock file with a shared non-blocking flock. Taking
// it means nobody holds the exclusive lock Claim takes.
func (r *Registry) lockHeld(t Target) (bool, error) {
	f, err := os.OpenFile(r.lockPath(t), os.O_RDONLY, 0)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening lock file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only probe

	err = unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB)
	switch {
	case err == nil:
		unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck,gosec // close releases anyway
		return false, nil
	case errors.Is(err, unix.EWOULDBLOCK):
		return true, nil
	default:
		return false, fmt.Errorf("probing lock %s: %w", t, err)
	}
}

// removeStale deletes the pidfile for t unless a new holder has recorded
// itself since it was read.
func (r *Registry) removeStale(t Target, stale int) {
	if current, err := r.PID(t); err == nil && current != stale {
		return
	}
	os.Remove(r.pidPath(t)) //nolint:errcheck,gosec // best effort
}

// Record writes pid as the holder of t. The write is atomic.
func (r *Registry) Record(t Target, pid int) error {
	tmp, err := os.CreateTemp(r.dir, "."+string(t)+".pid-*")
	if err != nil {
		return fmt.Errorf("creating pidfile: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := tmp.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		tmp.Close() //nolint:errcheck,gosec // error path
		return fmt.Errorf("writing pidfile: %w", err)
	}
	if err := tmp.Chmod(registryFilePermissions); err != nil {
		tmp.Close() //nolint:errcheck,gosec // error path
		return fmt.Errorf("chmod pidfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing pidfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.pidPath(t)); err != nil {
		return fmt.Errorf("installing pidfile: %w", err)
	}
	return nil
}

// Lease is a held claim on a Target. Release it on shutdown.
type Lease struct {
	registry *Registry
	target   Target
	lock     *os.File
	pid      int
}

// Claim makes the calling process the single live holder of t.
// It fails with ErrAlreadyRunning when another process holds the lock.
func (r *Registry) Claim(t Target) (*Lease, error) {
	f, err := os.OpenFile(r.lockPath(t), os.O_CREATE|os.O_RDWR, registryFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck,gosec // error path
		if errors.Is(err, unix.EWOULDBLOCK) {
			pid, _ := r.PID(t) //nolint:errcheck // informational only
			return nil, fmt.Errorf("%w: %s held by pid %d", ErrAlreadyRunning, t, pid)
		}
		return nil, fmt.Errorf("locking %s: %w", t, err)
	}

	pid := os.Getpid()
	if err := r.Record(t, pid); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck,gosec // error path
		f.Close()                             //nolint:errcheck,gosec // error path
		return nil, err
	}
	return &Lease{registry: r, target: t, lock: f, pid: pid}, nil
}

// Release drops the lock and removes the pidfile if it still names this holder.
func (l *Lease) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if pid, err := l.registry.PID(l.target); err == nil && pid == l.pid {
		os.Remove(l.registry.pidPath(l.target)) //nolint:errcheck,gosec // best effort
	}
	unix.Flock(int(l.lock.Fd()), unix.LOCK_UN) //nolint:errcheck,gosec // close releases anyway
	err := l.lock.Close()
	l.lock = nil
	if err != nil {
		return fmt.Errorf("closing lock file: %w", err)
	}
	return nil
}

// processAlive probes pid with signal 0. EPERM means the process exists
// but belongs to another user.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
