package migrate_test

import (
	"path/filepath"
	"testing"

	"bidforge/internal/db"
	"bidforge/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read schema_version: %v", err)
	}
	if version < 1 {
		t.Fatalf("schema_version = %d, want >= 1", version)
	}

	for _, table := range []string{"jobs", "proposals", "credits", "events"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestEnsureWorkspaceCreatesDir(t *testing.T) {
	dir := t.TempDir()
	got, err := db.EnsureWorkspace(dir)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	want := filepath.Join(dir, ".bidforge")
	if got != want {
		t.Fatalf("dir = %s, want %s", got, want)
	}
}
