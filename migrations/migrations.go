// Package migrations embeds and applies the SQL schema.
package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed *.sql
var Files embed.FS

// advisoryLockID keeps concurrent migrators from interleaving.
const advisoryLockID = 5518201

// Migration is one versioned SQL file.
type Migration struct {
	Version  string
	Filename string
	SQL      string
	Checksum string
}

// Discover lists migrations in fsys ordered by filename. Filenames must follow
// NNNN_description.sql and versions must be unique.
func Discover(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	seen := make(map[string]bool, len(names))
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		version, _, ok := strings.Cut(name, "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migrations: invalid filename %s, expected NNNN_description.sql", name)
		}
		if seen[version] {
			return nil, fmt.Errorf("migrations: duplicate version %s", version)
		}
		seen[version] = true
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("migrations: read %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		out = append(out, Migration{Version: version, Filename: name, SQL: string(body), Checksum: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

// Apply runs every pending embedded migration, each inside its own transaction.
func Apply(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (int, error) {
	list, err := Discover(Files)
	if err != nil {
		return 0, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations: acquire conn: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryLockID).Scan(&locked); err != nil {
		return 0, fmt.Errorf("migrations: advisory lock: %w", err)
	}
	if !locked {
		return 0, errors.New("migrations: another migrator is running")
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockID)
	}()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return 0, fmt.Errorf("migrations: create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range list {
		var existing string
		err := conn.QueryRow(ctx, `SELECT checksum FROM schema_migrations WHERE version = $1`, m.Version).Scan(&existing)
		switch {
		case err == nil:
			if existing != m.Checksum {
				return applied, fmt.Errorf("migrations: checksum mismatch for %s", m.Filename)
			}
			logger.Debug("migration already applied", slog.String("file", m.Filename))
			continue
		case !errors.Is(err, pgx.ErrNoRows):
			return applied, fmt.Errorf("migrations: lookup %s: %w", m.Filename, err)
		}

		if err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)`, m.Version, m.Filename, m.Checksum)
			return err
		}); err != nil {
			return applied, fmt.Errorf("migrations: apply %s: %w", m.Filename, err)
		}
		applied++
		logger.Info("migration applied", slog.String("file", m.Filename))
	}
	return applied, nil
}
