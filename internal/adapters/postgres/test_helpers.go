package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
)

// setupMockContext creates a context with the mock as a transaction
// This allows the BaseRepository.conn() method to return the mock
func setupMockContext(mock pgxmock.PgxPoolIface) context.Context {
	return context.WithValue(context.Background(), txKey, mock)
}

// setupTestDB connects to a real Postgres instance for integration tests.
// getTestDatabaseURL always yields a URL (falling back to PG* variables and
// local defaults), so the empty-URL skip below does not fire and the tests
// fail when no database is reachable.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := getTestDatabaseURL()
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	cleanupTestData(t, pool)

	t.Cleanup(func() {
		cleanupTestData(t, pool)
		pool.Close()
	})

	return pool
}

func getTestDatabaseURL() string {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}

	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgUser := os.Getenv("PGUSER")
	pgDatabase := os.Getenv("PGDATABASE")

	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgUser == "" {
		pgUser = "postgres"
	}
	if pgDatabase == "" {
		pgDatabase = "cogexec_test"
	}

	if len(pgHost) > 0 && pgHost[0] == '/' {
		return fmt.Sprintf("postgres://%s@:%s/%s?host=%s&sslmode=disable",
			pgUser, pgPort, pgDatabase, pgHost)
	}

	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
		pgUser, pgHost, pgPort, pgDatabase)
}

func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		DELETE FROM cogexec_memory
		WHERE id LIKE 'mem_tx_%' OR id LIKE 'mem_test%'
	`)
	if err != nil {
		// Table may not exist yet in a fresh test database; tests that need
		// it will fail with a clearer error at the query site.
		return
	}
	_, _ = pool.Exec(ctx, `DELETE FROM cogexec_memory_cluster WHERE id LIKE 'cls_test%'`)
	_, _ = pool.Exec(ctx, `DELETE FROM cogexec_user_profile WHERE user_id = 'test-user'`)
}
