// Package identity resolves the device identifier the tracker reports under.
//
// The identifier lives in a preference store written by a higher layer.
// The Resolver reads it at most once per process: after the first non-empty
// read the cached value is authoritative until an explicit Set replaces it.
package identity
