package app

import (
	"context"
	"strings"
	"sync"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/taskflowhq/go-auth"
)

const pingTimeout = 5 * time.Second

var registerModels sync.Once

// persistenceConfig exposes DatabaseConfig through the getters the
// persistence client reads.
type persistenceConfig struct {
	db    auth.DatabaseConfig
	debug bool
}

func (c persistenceConfig) GetDebug() bool { return c.debug }

func (c persistenceConfig) GetDriver() string {
	if c.db.Driver == "" {
		return auth.DriverSQLite
	}
	return strings.ToLower(c.db.Driver)
}

func (c persistenceConfig) GetServer() string { return c.db.DSN }

func (c persistenceConfig) GetDSN() string { return c.db.DSN }

func (c persistenceConfig) GetPingTimeout() time.Duration { return pingTimeout }

func (c persistenceConfig) GetOtelIdentifier() string { return "taskflow-auth" }

// openPersistence opens cfg.Database through the persistence client and
// applies the embedded migrations. The returned closer releases the pool.
func openPersistence(ctx context.Context, cfg *auth.Config) (*bun.DB, func() error, error) {
	sqldb, dialect, err := auth.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}

	registerModels.Do(func() {
		persistence.RegisterModel((*auth.User)(nil))
	})

	client, err := persistence.New(persistenceConfig{db: cfg.Database, debug: cfg.Debug}, sqldb, dialect)
	if err != nil {
		sqldb.Close()
		return nil, nil, err
	}
	client.SetLogger(auth.NewGLogger("persistence", cfg.Debug))
	client.RegisterDialectMigrations(
		auth.MigrationsFS(),
		persistence.WithDialectSourceLabel("data/sql/migrations"),
	)

	if err := client.Migrate(ctx); err != nil {
		sqldb.Close()
		return nil, nil, err
	}
	return client.DB(), sqldb.Close, nil
}
