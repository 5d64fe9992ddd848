package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var draftTables = []string{"drafts", "draft_fields", "comments"}

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	migrationsDir := filepath.Join("..", "..", "db", "migrations")

	files, err := MigrationFiles(migrationsDir)
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	applied, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("apply up migrations: %v", err)
	}
	if len(applied) != len(files) {
		t.Fatalf("expected %d applied migrations, got %v", len(files), applied)
	}
	if again, err := ApplyMigrations(ctx, db, migrationsDir); err != nil || len(again) != 0 {
		t.Fatalf("second apply should be a no-op, got %v, %v", again, err)
	}
	assertTables(t, ctx, db, true)

	for i := len(files) - 1; i >= 0; i-- {
		down := strings.TrimSuffix(files[i], ".up.sql") + ".down.sql"
		contents, err := os.ReadFile(down)
		if err != nil {
			t.Fatalf("read %s: %v", filepath.Base(down), err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			t.Fatalf("apply %s: %v", filepath.Base(down), err)
		}
	}
	assertTables(t, ctx, db, false)

	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("reapply up migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO drafts(id, template_id, title, document) VALUES('draft_rt', 'npa-standard', 'Round trip', '{}'::jsonb)`,
	); err != nil {
		t.Fatalf("insert draft after reapply: %v", err)
	}
}

func assertTables(t *testing.T, ctx context.Context, db *sql.DB, wantPresent bool) {
	t.Helper()
	for _, table := range draftTables {
		var present bool
		if err := db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&present); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if present != wantPresent {
			t.Fatalf("table %s present=%v, want %v", table, present, wantPresent)
		}
	}
}
