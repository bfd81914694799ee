package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/conference-rooms/internal/persistence"
	"github.com/example/conference-rooms/internal/persistence/sqlite"
	"github.com/example/conference-rooms/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Storage  *sqlite.Storage
	Users    persistence.UserRepository
	Rooms    persistence.RoomRepository
	Bookings persistence.BookingRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "rooms.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:  storage,
		Users:    storage.Users,
		Rooms:    storage.Rooms,
		Bookings: storage.Bookings,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedUser stores a user built from opts and returns the stored row.
func (h *SQLiteHarness) SeedUser(tb testing.TB, opts ...UserOption) persistence.User {
	tb.Helper()
	user, err := h.Users.CreateUser(context.Background(), NewUserFixture(opts...).Persistence())
	if err != nil {
		tb.Fatalf("failed to seed user: %v", err)
	}
	return user
}

// SeedRoom stores a room built from opts and returns the stored row.
func (h *SQLiteHarness) SeedRoom(tb testing.TB, opts ...RoomOption) persistence.Room {
	tb.Helper()
	room, err := h.Rooms.CreateRoom(context.Background(), NewRoomFixture(opts...).Persistence())
	if err != nil {
		tb.Fatalf("failed to seed room: %v", err)
	}
	return room
}

// SeedBooking stores a booking built from opts through the conflict-checked path.
func (h *SQLiteHarness) SeedBooking(tb testing.TB, opts ...BookingOption) persistence.Booking {
	tb.Helper()
	booking, err := h.Bookings.CreateBookingIfFree(context.Background(), NewBookingFixture(opts...).Persistence())
	if err != nil {
		tb.Fatalf("failed to seed booking: %v", err)
	}
	return booking
}
