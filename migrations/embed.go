// Package migrations embeds the versioned SQL schema for the knowledge base
// and evaluation history, one directory per database driver.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql in golang-migrate naming.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// Directories inside FS.
const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
