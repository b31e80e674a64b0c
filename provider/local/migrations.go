package local

import (
	"context"
	"embed"
	"io/fs"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed data/sql/migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// Migrate applies the embedded schema to db.
func Migrate(ctx context.Context, db *bun.DB) error {
	sub, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to open migrations")
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(sub); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to initialize migrations")
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to apply migrations")
	}

	return nil
}
