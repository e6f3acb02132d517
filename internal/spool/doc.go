// Package spool is a drop directory used as a one-way queue between
// processes. Writers place complete JSON files atomically (temp file plus
// rename); a single reader drains what is already there and then watches
// the directory with fsnotify.
//
// trackguard uses two spools: the host feeds OS events to the supervisor
// through one, and the upper application layer sends named commands to
// the agent through the other.
package spool
