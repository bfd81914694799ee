package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/conference-rooms/internal/persistence"
	"github.com/example/conference-rooms/internal/persistence/sqlite/migration"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	config := migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "rooms.db"))
	storage, err := Open(config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	return storage
}

func seedUser(t *testing.T, storage *Storage, email string) persistence.User {
	t.Helper()
	user, err := storage.Users.CreateUser(context.Background(), persistence.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hash",
		Role:         persistence.RoleUser,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s) returned error: %v", email, err)
	}
	return user
}

func seedRoom(t *testing.T, storage *Storage, name string) persistence.Room {
	t.Helper()
	room, err := storage.Rooms.CreateRoom(context.Background(), persistence.Room{
		Name:      name,
		Capacity:  8,
		Equipment: []string{"Projector"},
	})
	if err != nil {
		t.Fatalf("CreateRoom(%s) returned error: %v", name, err)
	}
	return room
}

func slot(day time.Time, startHour, endHour int) (time.Time, time.Time) {
	return day.Add(time.Duration(startHour) * time.Hour), day.Add(time.Duration(endHour) * time.Hour)
}

func TestStorageMigrateIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}
	if err := storage.Ping(ctx); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}

	var count int
	if err := storage.Pool().DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", count)
	}
}

func TestErrorMapperMapError(t *testing.T) {
	mapper := NewErrorMapper()

	tests := []struct {
		name string
		msg  string
		want error
	}{
		{name: "overlap trigger", msg: "booking_overlap (1811)", want: persistence.ErrConflict},
		{name: "unique", msg: "UNIQUE constraint failed: users.email", want: persistence.ErrDuplicate},
		{name: "foreign key", msg: "FOREIGN KEY constraint failed", want: persistence.ErrForeignKey},
		{name: "check", msg: "CHECK constraint failed: capacity", want: persistence.ErrConstraintViolation},
		{name: "locked", msg: "database is locked (5) (SQLITE_BUSY)", want: persistence.ErrLocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapper.MapError(errors.New(tt.msg))
			if !errors.Is(err, tt.want) {
				t.Fatalf("MapError(%q) = %v, want %v", tt.msg, err, tt.want)
			}
		})
	}

	if mapper.MapError(nil) != nil {
		t.Fatalf("MapError(nil) should be nil")
	}
}

func TestRetryHelperGivesUpOnPersistentLock(t *testing.T) {
	helper := NewRetryHelper(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})

	attempts := 0
	err := helper.WithRetry(context.Background(), func() error {
		attempts++
		return errors.New("database is locked")
	})
	if !errors.Is(err, persistence.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}

	attempts = 0
	err = helper.WithRetry(context.Background(), func() error {
		attempts++
		return persistence.ErrConflict
	})
	if !errors.Is(err, persistence.ErrConflict) || attempts != 1 {
		t.Fatalf("non-lock errors must not be retried: err=%v attempts=%d", err, attempts)
	}
}
