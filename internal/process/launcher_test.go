package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
	return ""
}

func TestExecLauncher_LaunchAndSkipWhenAlive(t *testing.T) {
	reg := newTestRegistry(t)
	out := filepath.Join(t.TempDir(), "reason")

	launcher := NewExecLauncher(reg, map[Target]Command{
		TargetMain: {
			Binary: "/bin/sh",
			Args:   []string{"-c", `echo "$TRACKGUARD_LAUNCH_REASON $TRACKGUARD_LAUNCH_MODE" > "$OUT"; exec sleep 30`},
			Env:    []string{"OUT=" + out},
		},
	})

	req := Request{Target: TargetMain, Mode: ModeBackground, Reason: "device_started"}
	if err := launcher.Launch(context.Background(), req); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	pid, err := reg.PID(TargetMain)
	if err != nil || pid == 0 {
		t.Fatalf("PID() = %d, %v, want launched pid", pid, err)
	}
	t.Cleanup(func() { syscall.Kill(-pid, syscall.SIGKILL) }) //nolint:errcheck // Test cleanup

	if got := waitForFile(t, out); got != "device_started background" {
		t.Errorf("child saw %q, want %q", got, "device_started background")
	}

	// The target is alive, so a second request must not start another copy.
	if err := launcher.Launch(context.Background(), req); err != nil {
		t.Fatalf("second Launch() error = %v", err)
	}
	if again, _ := reg.PID(TargetMain); again != pid {
		t.Errorf("pid after second Launch = %d, want %d", again, pid)
	}
}

func TestExecLauncher_IgnoresStalePidfile(t *testing.T) {
	reg := newTestRegistry(t)
	marker := filepath.Join(t.TempDir(), "launched")

	// Left behind by a holder killed before it could release; the pid now
	// belongs to a live unrelated process.
	if err := reg.Record(TargetMain, os.Getppid()); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	launcher := NewExecLauncher(reg, map[Target]Command{
		TargetMain: {Binary: "/bin/sh", Args: []string{"-c", `echo started > "$OUT"`}, Env: []string{"OUT=" + marker}},
	})
	if err := launcher.Launch(context.Background(), Request{Target: TargetMain, Mode: ModeForeground, Reason: "device_started"}); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	if got := waitForFile(t, marker); got != "started" {
		t.Errorf("marker = %q, want started", got)
	}
}

func TestExecLauncher_RelaunchesAfterChildExits(t *testing.T) {
	reg := newTestRegistry(t)
	count := filepath.Join(t.TempDir(), "count")

	launcher := NewExecLauncher(reg, map[Target]Command{
		TargetMain: {Binary: "/bin/sh", Args: []string{"-c", `echo x >> "$OUT"`}, Env: []string{"OUT=" + count}},
	})
	req := Request{Target: TargetMain, Mode: ModeForeground, Reason: "process_restarted"}

	for i := range 2 {
		if err := launcher.Launch(context.Background(), req); err != nil {
			t.Fatalf("Launch() #%d error = %v", i+1, err)
		}
		// Wait for the child to be reaped before the next request.
		deadline := time.Now().Add(5 * time.Second)
		for {
			launcher.mu.Lock()
			_, running := launcher.children[TargetMain]
			launcher.mu.Unlock()
			if !running {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("timed out waiting for child to exit")
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	data, err := os.ReadFile(count)
	if err != nil {
		t.Fatalf("reading count: %v", err)
	}
	if got := strings.Count(string(data), "x"); got != 2 {
		t.Errorf("child ran %d times, want 2", got)
	}
}

func TestExecLauncher_UnknownTarget(t *testing.T) {
	launcher := NewExecLauncher(newTestRegistry(t), map[Target]Command{})

	err := launcher.Launch(context.Background(), Request{Target: TargetSupervisor, Mode: ModeForeground})
	if !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("Launch() error = %v, want ErrUnknownTarget", err)
	}
}

func TestExecLauncher_StartFailure(t *testing.T) {
	launcher := NewExecLauncher(newTestRegistry(t), map[Target]Command{
		TargetMain: {Binary: "/nonexistent/binary"},
	})

	err := launcher.Launch(context.Background(), Request{Target: TargetMain, Mode: ModeForeground})
	if !errors.Is(err, ErrLaunch) {
		t.Errorf("Launch() error = %v, want ErrLaunch", err)
	}
}
