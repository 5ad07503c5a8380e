package authui

import (
	"context"
	"io/fs"
	"path"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

const migrationsRoot = "data/sql/migrations"

// MigrationsFor returns the embedded migrations that match the db dialect
func MigrationsFor(db *bun.DB) (fs.FS, error) {
	dir := "sqlite"
	if db.Dialect().Name() == dialect.PG {
		dir = "postgres"
	}
	return fs.Sub(GetMigrationsFS(), path.Join(migrationsRoot, dir))
}

// Migrate applies the users table migrations
func Migrate(ctx context.Context, db *bun.DB) error {
	source, err := MigrationsFor(db)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to scope migrations")
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(source); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to initialize migrations")
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to run migrations")
	}

	return nil
}
