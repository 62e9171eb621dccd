// Package di provides dependency injection for database connections.
package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/analytics"
	"github.com/aristath/riskwatch/internal/config"
	"github.com/aristath/riskwatch/internal/database"
	"github.com/aristath/riskwatch/internal/graph"
)

const graphConnectTimeout = 5 * time.Second

// InitializeDatabases opens the relational core, the client_data cache,
// the DuckDB analytical replica, and the optional Neo4j graph.
//
// Neo4j being down never fails startup: the container's Graph stays nil
// and litigation scoring plus the entity routes degrade.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{log: log.With().Str("component", "container").Logger()}

	corePath := filepath.Join(cfg.DataDir, "core.db")
	coreDB, err := database.New(database.Config{
		Path:    corePath,
		Profile: database.ProfileStandard,
		Name:    "core",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize core database: %w", err)
	}
	container.CoreDB = coreDB

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		coreDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{coreDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			coreDB.Close()
			cacheDB.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	analyticsStore, err := analytics.NewStore(filepath.Join(cfg.DataDir, "analytics.duckdb"), corePath, log)
	if err != nil {
		coreDB.Close()
		cacheDB.Close()
		return nil, fmt.Errorf("failed to initialize analytics store: %w", err)
	}
	container.Analytics = analyticsStore

	ctx, cancel := context.WithTimeout(context.Background(), graphConnectTimeout)
	defer cancel()

	graphStore, err := graph.NewStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, log)
	if err != nil {
		log.Warn().Err(err).Str("uri", cfg.Neo4jURI).Msg("Graph store unreachable - entity features degraded")
	} else {
		container.Graph = graphStore
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
