// Package persistence opens the bun database and applies the embedded
// identity migrations.
package persistence

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"

	auth "github.com/carely/go-auth"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver string
	DSN    string
	Debug  bool
}

// Open returns a bun.DB for the configured driver. SQLite connections get
// foreign keys enabled and a single connection so in-memory databases are
// shared by every query.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	var db *bun.DB

	switch opts.Driver {
	case DriverPostgres:
		sqldb, err := sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryExternal, "failed to open postgres")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite, "":
		sqldb, err := sql.Open(sqliteshim.ShimName, opts.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryExternal, "failed to open sqlite")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, errors.CategoryExternal, "failed to enable sqlite foreign keys")
		}
	default:
		return nil, errors.New("unsupported database driver", errors.CategoryBadInput).
			WithMetadata(map[string]any{"driver": opts.Driver})
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CategoryExternal, "database is not reachable").
			WithMetadata(map[string]any{"driver": opts.Driver})
	}

	return db, nil
}

// Migrate applies the pending identity migrations and returns the names of
// the ones applied by this call.
func Migrate(ctx context.Context, db *bun.DB) ([]string, error) {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(auth.GetMigrationsFS()); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to init migrations table")
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to apply migrations")
	}

	applied := []string{}
	if group != nil && !group.IsZero() {
		for _, m := range group.Migrations {
			applied = append(applied, m.Name)
		}
	}
	return applied, nil
}

// Rollback reverts the last applied migration group
func Rollback(ctx context.Context, db *bun.DB) error {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(auth.GetMigrationsFS()); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to discover migrations")
	}
	if _, err := migrate.NewMigrator(db, migrations).Rollback(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to rollback migrations")
	}
	return nil
}
