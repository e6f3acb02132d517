// Package permission checks the OS privileges uninterrupted background
// tracking depends on: fine location, background location (from platform
// version 29) and exemption from battery optimization (from platform version 23).
//
// Every check logs what is missing and how to fix it, because a throttled
// tracker is otherwise indistinguishable from a healthy one. The wording of
// the fix depends on the PrivilegeProvider: ObserveOnly for unmanaged
// devices, Privileged when a device-management product provisions grants.
package permission
