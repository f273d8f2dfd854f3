package persistence

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarrylane/lamina/database"
)

// mustTestPool creates a test database connection pool and applies the
// registry DDL. Tests are skipped when TEST_DATABASE_URL is not set, so the
// suite stays green without an external Postgres (e.g. in unit-only CI lanes).
func mustTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok || url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres-backed test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("create test pool: %v", err)
	}
	t.Cleanup(pool.Close)

	for _, raw := range strings.Split(database.TenantDatabasesSQL, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("apply registry ddl: %v", err)
		}
	}

	return pool
}
