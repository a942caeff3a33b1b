package store

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TRIP_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TRIP_TEST_DATABASE_URL is not set")
	}
	return dsn
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := testDatabaseURL(t)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	migrationsDir := migrationsDirForTest()
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}

	states, err := MigrationStatus(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	for _, state := range states {
		if !state.Applied {
			t.Fatalf("expected %s to be applied", state.Version)
		}
	}

	for range states {
		if _, err := RollbackLast(ctx, db, migrationsDir); err != nil {
			t.Fatalf("rollback: %v", err)
		}
	}
	version, err := RollbackLast(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("rollback on empty history: %v", err)
	}
	if version != "" {
		t.Fatalf("expected nothing left to roll back, got %s", version)
	}

	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
