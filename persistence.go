package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/migrate"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenSQL opens the raw connection pool for driver and returns the matching
// Bun dialect. The sqlite driver is the development and test default;
// postgres goes through lib/pq.
func OpenSQL(driver, dsn string) (*sql.DB, schema.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "open sqlite")
		}
		// in-memory databases are per connection
		sqldb.SetMaxOpenConns(1)
		return sqldb, sqlitedialect.New(), nil
	case DriverPostgres, "postgresql":
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "open postgres")
		}
		return sqldb, pgdialect.New(), nil
	default:
		return nil, nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", driver), goerrors.CategoryBadInput).
			WithTextCode("UNSUPPORTED_DRIVER")
	}
}

// OpenDB opens the user database for driver and dsn.
func OpenDB(driver, dsn string) (*bun.DB, error) {
	sqldb, dialect, err := OpenSQL(driver, dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, dialect), nil
}

// Migrate applies the embedded SQL migrations that have not run yet.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(MigrationsFS()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "init migration tables")
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "run migrations").
			WithTextCode("MIGRATION_FAILED")
	}
	return nil
}
