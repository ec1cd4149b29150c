package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflowhq/go-auth"
)

func TestPersistenceConfig_Getters(t *testing.T) {
	cfg := persistenceConfig{db: auth.DatabaseConfig{DSN: "file::memory:"}, debug: true}

	assert.True(t, cfg.GetDebug())
	assert.Equal(t, auth.DriverSQLite, cfg.GetDriver())
	assert.Equal(t, "file::memory:", cfg.GetDSN())
	assert.Equal(t, 5*time.Second, cfg.GetPingTimeout())

	cfg.db.Driver = "Postgres"
	assert.Equal(t, auth.DriverPostgres, cfg.GetDriver())
}

func TestRunMigrate_SeedsDemoUsers(t *testing.T) {
	cfg := testConfig()
	cfg.Normalize()

	var out bytes.Buffer
	require.NoError(t, runMigrate(context.Background(), &out, cfg))

	assert.Contains(t, out.String(), "migrations applied")
	assert.Contains(t, out.String(), "demo users")
}

func TestRunMigrate_UnsupportedDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "mssql"

	var out bytes.Buffer
	err := runMigrate(context.Background(), &out, cfg)
	require.Error(t, err)
	assert.Empty(t, out.String())
}
