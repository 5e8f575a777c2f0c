package database

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Migrator applies versioned SQL migrations, recording applied versions
// in schema_migrations so reruns are no-ops.
type Migrator struct {
	pool   *pgxpool.Pool
	tx     *TxManager
	logger *zap.Logger
}

// NewMigrator creates a migrator over the given pool.
func NewMigrator(pool *pgxpool.Pool, logger *zap.Logger) *Migrator {
	return &Migrator{
		pool:   pool,
		tx:     NewTxManager(pool, logger),
		logger: logger,
	}
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		filename TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// MigrateFromFS applies every pending NNN_name.up.sql file under dir in
// version order. fsys is normally the embedded migrations filesystem.
func (m *Migrator) MigrateFromFS(ctx context.Context, fsys fs.FS, dir string) error {
	if _, err := m.pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}

	// fs.Glob returns sorted paths, and zero-padded version prefixes
	// make lexical order match version order.
	files, err := fs.Glob(fsys, dir+"/*.up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	for _, file := range files {
		name := path.Base(file)
		version, ok := parseMigrationVersion(name)
		if !ok {
			m.logger.Warn("skipping migration with unparseable version",
				zap.String("file", name))
			continue
		}
		if applied[version] {
			continue
		}

		sql, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		err = m.tx.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return fmt.Errorf("execute: %w", err)
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)`,
				version, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		m.logger.Info("migration applied",
			zap.Int("version", version),
			zap.String("file", name),
		)
	}

	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// parseMigrationVersion extracts the numeric prefix from NNN_name.up.sql.
func parseMigrationVersion(name string) (int, bool) {
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return 0, false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, false
	}
	return version, true
}
