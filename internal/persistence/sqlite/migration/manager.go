package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Manager orchestrates scanning, validation and execution of migrations.
type Manager struct {
	source   fs.FS
	dir      string
	executor *SQLiteExecutor
	logger   *slog.Logger
}

// NewManager creates a manager that reads migrations from dir inside source.
func NewManager(db *sql.DB, source fs.FS, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		source:   source,
		dir:      dir,
		executor: NewSQLiteExecutor(db),
		logger:   logger.With("component", "migration"),
	}
}

// Run applies every pending migration in version order and returns the versions
// it applied. Execution stops at the first failure.
func (m *Manager) Run(ctx context.Context) ([]int, error) {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to determine migration status", "error", err)
		return nil, err
	}

	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "database schema up to date", "version", status.CurrentVersion)
		return nil, nil
	}

	m.logger.InfoContext(ctx, "applying migrations",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	applied := make([]int, 0, len(status.Pending))
	for _, migration := range status.Pending {
		elapsed, err := m.executor.Apply(ctx, migration)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", migration.Version,
				"file", migration.Name,
				"error", err,
			)
			return applied, err
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", elapsed,
		)
		applied = append(applied, migration.Version)
	}

	m.logger.InfoContext(ctx, "migrations completed",
		"applied", len(applied),
		"duration", time.Since(started),
	)
	return applied, nil
}

// Status compares the migration sources with the schema_migrations table.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	available, err := Scan(m.source, m.dir)
	if err != nil {
		return Status{}, err
	}

	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	applied, err := m.executor.AppliedMigrations(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[int]Migration, len(available))
	for _, migration := range available {
		byVersion[migration.Version] = migration
	}

	status := Status{Applied: applied}
	appliedSet := make(map[int]struct{}, len(applied))
	for _, record := range applied {
		source, ok := byVersion[record.Version]
		if !ok {
			return Status{}, newMigrationError(record.Version, "", "validate applied",
				fmt.Errorf("%w: applied version has no migration file", ErrVersionConflict))
		}
		if record.Checksum != source.Checksum {
			return Status{}, newMigrationError(record.Version, source.Name, "validate checksum", ErrChecksumMismatch)
		}
		appliedSet[record.Version] = struct{}{}
		if record.Version > status.CurrentVersion {
			status.CurrentVersion = record.Version
		}
	}

	for _, migration := range available {
		if _, ok := appliedSet[migration.Version]; !ok {
			status.Pending = append(status.Pending, migration)
		}
	}
	return status, nil
}
