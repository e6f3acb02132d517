// Package process describes relaunch requests and the host plumbing that
// carries them out on plain Linux hosts.
//
// Features:
//   - Launch Request, Target and Mode, with ModeFor selecting foreground or
//     background start by platform version
//   - RestartPolicy and Registration, declared when a unit joins the supervisor tree
//   - ExecLauncher: detached children in their own process group, background
//     mode at lowered priority
//   - Registry: pidfile liveness (signal 0) plus an flock single-instance claim
//
// Example usage:
//
//	reg, err := process.NewRegistry("/run/trackguard")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	lease, err := reg.Claim(process.TargetSupervisor)
//	if err != nil {
//	    log.Fatal(err) // another supervisor is alive
//	}
//	defer lease.Release()
//
//	launcher := process.NewExecLauncher(reg, map[process.Target]process.Command{
//	    process.TargetMain: {Binary: "/usr/bin/tracker"},
//	})
//	err = launcher.Launch(ctx, process.Request{
//	    Target: process.TargetMain,
//	    Mode:   process.ModeFor(0, process.DefaultForegroundMinVersion),
//	    Reason: "device_started",
//	})
package process
