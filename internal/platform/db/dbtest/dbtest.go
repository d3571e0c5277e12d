// Package dbtest prepares the PostgreSQL database used by repository
// integration tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/migrations"
)

// EnvDSN names the database integration tests run against. Open truncates every
// table, so it must point at a disposable database, never PG_DSN.
const EnvDSN = "POS_TEST_PG_DSN"

// serialLockID keeps test binaries of different packages off the database at the
// same time.
const serialLockID = 5518202

// Open connects to EnvDSN, applies the migrations and empties every table. The
// test is skipped when EnvDSN is unset. The pool and the package lock are
// released on cleanup.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env.test")
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skip(EnvDSN + " not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.New(ctx, dsn, db.Options{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, serialLockID)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, serialLockID)
		conn.Release()
	})

	_, err = migrations.Apply(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `TRUNCATE TABLE income, expenses, sale_items, sales, purchase_items, purchases,
products, categories, suppliers, customers, idempotency_keys, audit_logs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

// Seed runs seed SQL and returns the id produced by its RETURNING id clause.
func Seed(t testing.TB, pool *pgxpool.Pool, sql string, args ...any) int64 {
	t.Helper()
	var id int64
	require.NoError(t, pool.QueryRow(context.Background(), sql, args...).Scan(&id))
	return id
}
