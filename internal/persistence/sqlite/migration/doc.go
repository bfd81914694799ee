// Package migration applies versioned SQL schema changes to a SQLite database.
//
// Migration sources are read from an fs.FS (normally an embed.FS compiled into
// the binary) and must be named {version}_{description}.sql, for example
// "001_initial_schema.sql". Versions form a gap-free ascending sequence.
//
// Each pending file is executed together with its schema_migrations record in a
// single transaction, so a failing file leaves no partial schema behind. The
// checksum recorded for an applied version is compared against the current file
// contents on every run and a mismatch aborts startup.
//
// Example usage:
//
//	manager := migration.NewManager(db, migrationsFS, "migrations", logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
