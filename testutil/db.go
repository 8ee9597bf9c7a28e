// Package testutil provides shared helpers for the Postgres integration tests.
// Every helper skips the test when TEST_DATABASE_URL is not set, so unit tests
// run without a database.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/pkordes/lesson-invoices/backend/migrations"
)

// DSNEnv names the variable holding the integration test database URL.
const DSNEnv = "TEST_DATABASE_URL"

// NewPool opens a pool on the test database, closed when the test finishes.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := requireDSN(t)

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("testutil.NewPool: open pool: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("testutil.NewPool: ping: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// NewTx begins a transaction on the test database and rolls it back when the
// test finishes. Repos built on it see their own writes and leave nothing
// behind. Nested Begin calls become savepoints.
func NewTx(t *testing.T) pgx.Tx {
	t.Helper()
	pool := NewPool(t)

	tx, err := pool.Begin(context.Background())
	if err != nil {
		t.Fatalf("testutil.NewTx: begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}

// NewSQLDB opens a database/sql handle on the test database, for goose.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openSQLDB(requireDSN(t))
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewMigrator returns a goose provider over the embedded migrations.
func NewMigrator(db *sql.DB) (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
}

// MigrateUp applies all pending migrations to the database at
// TEST_DATABASE_URL. It is meant for TestMain, where no *testing.T exists; it
// does nothing when the variable is unset.
func MigrateUp(ctx context.Context) error {
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		return nil
	}
	db, err := openSQLDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := NewMigrator(db)
	if err != nil {
		return fmt.Errorf("testutil.MigrateUp: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("testutil.MigrateUp: %w", err)
	}
	return nil
}

func openSQLDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skip(DSNEnv + " not set; skipping integration test")
	}
	return dsn
}
