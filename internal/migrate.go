package internal

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

func setupGoose() error {
	goose.SetBaseFS(migrations)
	return goose.SetDialect("postgres")
}

// RunMigrations applies all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// MigrationVersion returns the current schema version.
func MigrationVersion(ctx context.Context, db *sql.DB) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}
