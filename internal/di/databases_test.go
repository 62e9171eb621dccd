package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskwatch/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		// An empty URI fails the driver constructor immediately, so the
		// graph stays nil without a dial timeout.
		Neo4jURI: "",

		WeightVolatility: 0.30,
		WeightLitigation: 0.25,
		WeightSentiment:  0.20,
		WeightAnomaly:    0.15,
		WeightRegulatory: 0.10,

		FactorTimeoutSeconds: 5,
		BatchWorkers:         2,
		MaxTrackedCompanies:  10,

		CacheTTLSeconds: 3600,
		RefreshSchedule: "0 0 6 * * *",

		Backup: &config.BackupConfig{},
	}
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	defer container.Close(context.Background())

	assert.NotNil(t, container.CoreDB)
	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.Analytics)
	assert.Nil(t, container.Graph)

	assert.FileExists(t, filepath.Join(cfg.DataDir, "core.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "cache.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "analytics.duckdb"))
}

func TestInitializeDatabasesAppliesSchemas(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close(context.Background())

	var name string
	err = container.CoreDB.Conn().
		QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'companies'").
		Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "companies", name)

	err = container.CacheDB.Conn().
		QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'analytics_volatility'").
		Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "analytics_volatility", name)
}
