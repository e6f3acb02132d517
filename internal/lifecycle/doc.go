// Package lifecycle runs the agent process window: what happens when the
// tracked agent is activated, resumed and torn down, and how the management
// channel's connection events are turned into configuration reloads.
//
// It also hosts the cross-layer command surface (Commands) through which
// the upper application layer pushes the device identity and pass-through
// log lines.
package lifecycle
