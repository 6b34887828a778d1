package database

import (
	"context"
	"embed"
	"path/filepath"
	"testing"
)

//go:embed testdata
var testMigrations embed.FS

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // test teardown
	})
	return db
}

// useTestMigrations points the package at the embedded fixtures and
// restores the previous registration afterwards.
func useTestMigrations(t *testing.T) {
	t.Helper()

	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS = testMigrations
	MigrationsDir = "testdata"
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = prevFS, prevDir
	})
}

func TestOpenAndHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if db.Path() == "" {
		t.Error("Path() empty")
	}
}

func TestMigrateAppliesInOrder(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	// Both fixture migrations applied: table plus index exist.
	if _, err := db.ExecContext(ctx, "INSERT INTO widgets (name) VALUES ('a')"); err != nil {
		t.Errorf("widgets table missing after migrate: %v", err)
	}

	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations",
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations = %d, want 2", count)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("first Migrate() error: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations after rerun = %d, want 2", count)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"up file", "20240101_000000_widgets.up.sql", "20240101_000000", true, true},
		{"down file", "20240101_000000_widgets.down.sql", "20240101_000000", false, true},
		{"no direction", "20240101_000000_widgets.sql", "", false, false},
		{"not sql", "readme.md", "", false, false},
		{"too few parts", "short.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || isUp != tt.wantUp {
				t.Errorf("parse = (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantUp)
			}
		})
	}
}
