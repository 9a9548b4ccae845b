package rbac

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SkipIfNoDatabase skips the test if TEST_POSTGRES_PRIMARY environment variable is not set.
// This allows tests to run in CI where the database is available, but skip locally if not configured.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("Skipping test: TEST_POSTGRES_PRIMARY environment variable not set (database not available)")
	}

	return dbURL
}

// RequireDatabase gets a migrated PostgreSQL connection or skips the test if not available.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := SkipIfNoDatabase(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	migrate(t, db)
	return db
}

// OpenTestDB returns a migrated in-memory SQLite database closed at test cleanup
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	migrate(t, db)
	return db
}

// IsDatabaseAvailable returns true if TEST_POSTGRES_PRIMARY is set (does not test connection).
func IsDatabaseAvailable() bool {
	return os.Getenv("TEST_POSTGRES_PRIMARY") != ""
}

func migrate(t *testing.T, db *sql.DB) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if err := RunMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
}
