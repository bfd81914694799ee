package migration

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDatabase(InMemoryTestSQLiteConfig())
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_Run(t *testing.T) {
	ctx := context.Background()

	source := fstest.MapFS{
		"m/001_items.sql": {Data: []byte(`
			CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
			CREATE TRIGGER items_no_blank BEFORE INSERT ON items
			WHEN trim(NEW.name) = ''
			BEGIN
				SELECT RAISE(ABORT, 'blank name');
			END;
		`)},
		"m/002_seed.sql": {Data: []byte(`INSERT INTO items (name) VALUES ('first');`)},
	}

	t.Run("applies pending migrations once", func(t *testing.T) {
		db := openTestDB(t)
		manager := NewManager(db, source, "m", discardLogger())

		applied, err := manager.Run(ctx)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
			t.Fatalf("unexpected applied versions: %v", applied)
		}

		if _, err := db.ExecContext(ctx, `INSERT INTO items (name) VALUES ('  ')`); err == nil || !strings.Contains(err.Error(), "blank name") {
			t.Fatalf("expected trigger from multi-statement migration to fire, got %v", err)
		}

		again, err := manager.Run(ctx)
		if err != nil {
			t.Fatalf("second Run returned error: %v", err)
		}
		if len(again) != 0 {
			t.Fatalf("expected nothing to apply on second run, got %v", again)
		}

		status, err := manager.Status(ctx)
		if err != nil {
			t.Fatalf("Status returned error: %v", err)
		}
		if status.CurrentVersion != 2 || len(status.Pending) != 0 || len(status.Applied) != 2 {
			t.Fatalf("unexpected status: %+v", status)
		}
	})

	t.Run("rolls back a failing migration", func(t *testing.T) {
		db := openTestDB(t)
		broken := fstest.MapFS{
			"m/001_ok.sql":     {Data: []byte(`CREATE TABLE ok (id INTEGER);`)},
			"m/002_broken.sql": {Data: []byte(`CREATE TABLE half (id INTEGER); INSERT INTO missing VALUES (1);`)},
		}
		manager := NewManager(db, broken, "m", discardLogger())

		applied, err := manager.Run(ctx)
		if !errors.Is(err, ErrMigrationFailed) {
			t.Fatalf("expected ErrMigrationFailed, got %v", err)
		}
		if len(applied) != 1 {
			t.Fatalf("expected first migration to be applied, got %v", applied)
		}

		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'`).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected table from failed migration to be rolled back")
		}
	})

	t.Run("detects edited migrations", func(t *testing.T) {
		db := openTestDB(t)
		if _, err := NewManager(db, source, "m", discardLogger()).Run(ctx); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}

		edited := fstest.MapFS{
			"m/001_items.sql": {Data: []byte(`CREATE TABLE items (id INTEGER PRIMARY KEY);`)},
			"m/002_seed.sql":  source["m/002_seed.sql"],
		}
		_, err := NewManager(db, edited, "m", discardLogger()).Run(ctx)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})

	t.Run("detects applied versions without files", func(t *testing.T) {
		db := openTestDB(t)
		if _, err := NewManager(db, source, "m", discardLogger()).Run(ctx); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}

		truncated := fstest.MapFS{"m/001_items.sql": source["m/001_items.sql"]}
		_, err := NewManager(db, truncated, "m", discardLogger()).Run(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})
}

func TestSQLiteConfig(t *testing.T) {
	t.Run("renders pragmas and tx lock into the DSN", func(t *testing.T) {
		dsn := DefaultSQLiteConfig("/tmp/rooms.db").DSN()
		path, rawQuery, ok := strings.Cut(dsn, "?")
		if !ok || path != "/tmp/rooms.db" {
			t.Fatalf("unexpected DSN: %q", dsn)
		}
		query, err := url.ParseQuery(rawQuery)
		if err != nil {
			t.Fatalf("ParseQuery failed: %v", err)
		}
		if query.Get("_txlock") != "immediate" {
			t.Fatalf("expected immediate tx lock, got %q", query.Get("_txlock"))
		}
		pragmas := strings.Join(query["_pragma"], ",")
		for _, want := range []string{"busy_timeout(30000)", "foreign_keys(1)", "journal_mode(WAL)"} {
			if !strings.Contains(pragmas, want) {
				t.Fatalf("expected pragma %s in %s", want, pragmas)
			}
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		cfg := DefaultSQLiteConfig("rooms.db")
		cfg.JournalMode = "BOGUS"
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected invalid journal mode to be rejected")
		}

		cfg = DefaultSQLiteConfig("")
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected empty path to be rejected")
		}
	})

	t.Run("enforces foreign keys on opened connections", func(t *testing.T) {
		db := openTestDB(t)
		var enabled int
		if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&enabled); err != nil {
			t.Fatalf("query pragma: %v", err)
		}
		if enabled != 1 {
			t.Fatalf("expected foreign keys enabled")
		}
	})
}
