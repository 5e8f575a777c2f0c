package database

import (
	"context"
	"embed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending embedded migrations.
func (db *DB) Migrate(ctx context.Context) error {
	m := NewMigrator(db.Pool, db.logger)
	return m.MigrateFromFS(ctx, migrationsFS, "migrations")
}
