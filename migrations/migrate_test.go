package migrations_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/cimillas/ticket-inventory/internal/testutil"
	"github.com/cimillas/ticket-inventory/migrations"
)

func TestApply_RecordsMigrations(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS schema_migrations`); err != nil {
		t.Fatalf("drop schema_migrations: %v", err)
	}

	if _, err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", count)
	}

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected nothing applied on second run, got %v", applied)
	}

	for _, table := range []string{"ticket_types", "inventory_units", "registrations", "payments"} {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			t.Fatalf("check %s: %v", table, err)
		}
		if !exists {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestMigrationNamesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.sql": {Data: []byte("SELECT 2")},
		"0001_a.sql": {Data: []byte("SELECT 1")},
		"README.md":  {Data: []byte("docs")},
	}
	names, err := migrations.MigrationNames(fsys)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 2 || names[0] != "0001_a.sql" || names[1] != "0002_b.sql" {
		t.Fatalf("unexpected order: %v", names)
	}
}
