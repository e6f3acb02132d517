package process

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// deadPID is above the kernel pid limit, so signal 0 always reports ESRCH.
const deadPID = 1 << 30

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(filepath.Join(t.TempDir(), "run"))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func TestRegistry_EmptyPID(t *testing.T) {
	reg := newTestRegistry(t)

	pid, err := reg.PID(TargetMain)
	if err != nil || pid != 0 {
		t.Errorf("PID() = %d, %v, want 0, nil", pid, err)
	}
	if _, alive := reg.Alive(TargetMain); alive {
		t.Error("Alive() = true for empty registry")
	}
}

func TestRegistry_AliveFollowsLease(t *testing.T) {
	reg := newTestRegistry(t)

	lease, err := reg.Claim(TargetMain)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	pid, alive := reg.Alive(TargetMain)
	if !alive || pid != os.Getpid() {
		t.Errorf("Alive() = %d, %v, want %d, true", pid, alive, os.Getpid())
	}

	if err := lease.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, alive := reg.Alive(TargetMain); alive {
		t.Error("Alive() = true after Release")
	}
}

func TestRegistry_StalePidfile(t *testing.T) {
	tests := []struct {
		name string
		pid  int
	}{
		// The pid left by a killed holder now belongs to an unrelated live process.
		{name: "reused pid", pid: os.Getppid()},
		{name: "dead pid", pid: deadPID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t)

			// A lock file from an earlier holder exists, but nobody holds it.
			lease, err := reg.Claim(TargetMain)
			if err != nil {
				t.Fatalf("Claim() error = %v", err)
			}
			if err := lease.Release(); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if err := reg.Record(TargetMain, tt.pid); err != nil {
				t.Fatalf("Record() error = %v", err)
			}

			if pid, alive := reg.Alive(TargetMain); alive {
				t.Errorf("Alive() = %d, true for stale pidfile", pid)
			}
			if _, err := os.Stat(reg.pidPath(TargetMain)); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("stale pidfile not removed: %v", err)
			}
		})
	}
}

func TestRegistry_PidfileWithoutLockFile(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Record(TargetSupervisor, os.Getpid()); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if _, alive := reg.Alive(TargetSupervisor); alive {
		t.Error("Alive() = true without a lock holder")
	}
}

func TestRegistry_CorruptPidfile(t *testing.T) {
	reg := newTestRegistry(t)
	if err := os.WriteFile(reg.pidPath(TargetMain), []byte("not-a-pid"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.PID(TargetMain); err == nil {
		t.Error("PID() expected parse error")
	}
	if _, alive := reg.Alive(TargetMain); alive {
		t.Error("Alive() = true for corrupt pidfile")
	}
}

func TestRegistry_ClaimIsExclusive(t *testing.T) {
	reg := newTestRegistry(t)

	lease, err := reg.Claim(TargetSupervisor)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	if _, err := reg.Claim(TargetSupervisor); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Claim() error = %v, want ErrAlreadyRunning", err)
	}

	// Other targets are independent.
	other, err := reg.Claim(TargetMain)
	if err != nil {
		t.Fatalf("Claim(main) error = %v", err)
	}
	defer other.Release() //nolint:errcheck // Test cleanup

	if err := lease.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if pid, _ := reg.PID(TargetSupervisor); pid != 0 {
		t.Errorf("PID() after Release = %d, want 0", pid)
	}

	again, err := reg.Claim(TargetSupervisor)
	if err != nil {
		t.Fatalf("Claim() after Release error = %v", err)
	}
	if err := again.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	// Double release is harmless.
	if err := again.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
