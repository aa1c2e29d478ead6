package db_test

import (
	"os"
	"path/filepath"
	"testing"

	"focusflow/internal/db"
)

func TestRunMigrationsIsIdempotent(t *testing.T) {
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "nested", "focus.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	first, err := db.RunMigrations(database, db.MigrationSource(""))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected embedded migrations to be applied")
	}

	second, err := db.RunMigrations(database, db.MigrationSource(""))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no migrations on second run, got %v", second)
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(1) FROM focus_sessions`).Scan(&count); err != nil {
		t.Fatalf("query focus_sessions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty table, got %d rows", count)
	}
}

func TestPendingMigrationsTracksDirectory(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_notes.sql", `CREATE TABLE notes (id TEXT PRIMARY KEY);`)

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "focus.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	pending, err := db.PendingMigrations(database, db.MigrationSource(dir))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "001_notes.sql" {
		t.Fatalf("unexpected pending %v", pending)
	}
	if _, err := db.RunMigrations(database, db.MigrationSource(dir)); err != nil {
		t.Fatalf("run: %v", err)
	}

	writeMigration(t, dir, "002_broken.sql", `CREATE TABLE notes (id TEXT PRIMARY KEY);`)
	applied, err := db.RunMigrations(database, db.MigrationSource(dir))
	if err == nil {
		t.Fatal("expected duplicate table to fail")
	}
	if len(applied) != 0 {
		t.Fatalf("expected nothing applied, got %v", applied)
	}
	pending, err = db.PendingMigrations(database, db.MigrationSource(dir))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "002_broken.sql" {
		t.Fatalf("failed migration should stay pending, got %v", pending)
	}
}

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
