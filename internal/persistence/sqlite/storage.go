package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/conference-rooms/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the connection pool with the repositories built on it.
type Storage struct {
	pool   *ConnectionPool
	logger *slog.Logger

	Users    *UserRepository
	Rooms    *RoomRepository
	Bookings *BookingRepository
}

// Open creates the connection pool and repositories. Call Migrate before use.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}

	return &Storage{
		pool:     pool,
		logger:   logger,
		Users:    NewUserRepository(pool, logger),
		Rooms:    NewRoomRepository(pool, logger),
		Bookings: NewBookingRepository(pool, logger),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(s.pool.DB(), migrationFiles, "migrations", s.logger)
	if _, err := manager.Run(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Ping verifies the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the connection pool for callers that need raw access.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
