package migration

import "time"

// Migration is a single versioned schema change.
type Migration struct {
	Version     int
	Name        string // file name, e.g. 001_initial_schema.sql
	Description string
	SQL         string
	Checksum    string // sha256 of SQL, hex encoded
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       int
	Checksum      string
	AppliedAt     time.Time
	ExecutionTime time.Duration
}

// Status summarises the migration state of a database.
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}
