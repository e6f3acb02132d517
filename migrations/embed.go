// Package migrations embeds the SQL schema so the binary can bring a fresh
// database up to date without the files present on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
