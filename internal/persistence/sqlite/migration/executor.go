package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const versionTableSQL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		execution_time_ms INTEGER NOT NULL DEFAULT 0
	)
`

// SQLiteExecutor runs migrations against a SQLite database and tracks them in
// the schema_migrations table.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, versionTableSQL); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// Apply executes the migration SQL and records it in one transaction. The SQL is
// sent as a single multi-statement exec so trigger bodies keep their inner
// semicolons.
func (e *SQLiteExecutor) Apply(ctx context.Context, migration Migration) (elapsed time.Duration, err error) {
	started := e.now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, newMigrationError(migration.Version, migration.Name, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, migration.SQL); err != nil {
		err = newMigrationError(migration.Version, migration.Name, "execute",
			fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		return 0, err
	}

	elapsed = e.now().Sub(started)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, description, checksum, applied_at, execution_time_ms)
		VALUES (?, ?, ?, ?, ?)
	`, migration.Version, migration.Description, migration.Checksum,
		e.now().UTC().Format(time.RFC3339Nano), elapsed.Milliseconds())
	if err != nil {
		err = newMigrationError(migration.Version, migration.Name, "record migration", err)
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		err = newMigrationError(migration.Version, migration.Name, "commit transaction", err)
		return 0, err
	}
	return elapsed, nil
}

// AppliedMigrations returns every recorded migration ordered by version.
func (e *SQLiteExecutor) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT version, checksum, applied_at, execution_time_ms
		FROM schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			record    AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&record.Version, &record.Checksum, &appliedAt, &elapsedMs); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, appliedAt); err == nil {
			record.AppliedAt = ts
		}
		record.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}
