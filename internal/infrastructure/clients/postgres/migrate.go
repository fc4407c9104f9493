package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

type migrationFile struct {
	version string
	name    string
}

// Migrate applies every migration in files whose version is not yet recorded
// in schema_migrations. Each file runs in its own transaction.
func (c *Client) Migrate(ctx context.Context, files fs.FS) error {
	if _, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	pending, err := scanMigrations(files)
	if err != nil {
		return err
	}

	for _, m := range pending {
		var applied bool
		if err := c.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		body, err := fs.ReadFile(files, m.name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", m.name, err)
		}
		if err := c.applyMigration(ctx, m, string(body)); err != nil {
			return err
		}
		log.Info().Str("version", m.version).Str("file", m.name).Msg("Applied migration")
	}

	return nil
}

func (c *Client) applyMigration(ctx context.Context, m migrationFile, body string) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, body); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}
		return nil
	})
}

func scanMigrations(files fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var out []migrationFile
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		if other, dup := seen[match[1]]; dup {
			return nil, fmt.Errorf("duplicate migration version %s in %s and %s", match[1], other, entry.Name())
		}
		seen[match[1]] = entry.Name()
		out = append(out, migrationFile{version: match[1], name: entry.Name()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
