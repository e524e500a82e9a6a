//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthplix/healthplix/internal/domain/profile"
	"github.com/healthplix/healthplix/internal/platform/db"
)

// globalPool is the shared test database, initialized once in TestMain.
var globalPool *pgxpool.Pool

// TestMain runs the suite against TEST_DATABASE_URL after applying the
// repository migrations. Without it the suite is skipped.
func TestMain(m *testing.M) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		fmt.Fprintln(os.Stderr, "TEST_DATABASE_URL not set; skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 10, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// resetTables empties every table so each test starts clean.
func resetTables(t *testing.T) {
	t.Helper()
	_, err := globalPool.Exec(context.Background(), `
		TRUNCATE schedule_entries, prescriptions, care_assignments, connection_requests, profiles`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func seedProfile(t *testing.T, email, name, role string, age int) {
	t.Helper()
	repo := profile.NewProfileRepoPG(globalPool)
	p := &profile.Profile{Email: email, Name: name, Age: age, Role: role}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("seed profile %s: %v", email, err)
	}
}
