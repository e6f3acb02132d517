// Package event carries host system signals to the supervisor.
//
// The host (an Android broadcast bridge, the spool watcher, or the emit
// subcommand) creates an Event and publishes it on the Bus, which is a
// watermill in-process channel. Publishing never waits for the supervisor.
// The supervisor side consumes the bus and hands each Event to a Listener,
// which drops redelivered instances and routes:
//
//   - device_started, package_updated, process_restarted to EnsureRunning
//   - task_removed to OnTaskRemoved
//   - supervisor_destroyed to OnDestroyed
package event
