// Package supervisor implements the process-survival state machine.
//
// A Supervisor instance moves between Stopped, Starting and Running in
// response to EnsureRunning, OnTaskRemoved and OnDestroyed. It never stops
// itself permanently. Task removal and host destruction end the current
// instance, and the Service wrapping it returns so the suture Tree can
// create a replacement according to the RestartPolicy declared at
// registration.
//
// Relaunch requests are fire-and-forget. A failed request is logged,
// recorded and left for the next event to retry. GuardedLauncher puts a
// circuit breaker in front of the host so an event storm against a broken
// host does not become a relaunch storm.
//
// Two roles use the same machine:
//
//	supervisor process: Options{EnsureTarget: process.TargetMain}
//	agent process:      Options{EnsureTarget: process.TargetSupervisor}
package supervisor
