// Package di provides dependency injection type definitions.
//
// The Container is the single source of truth for all store, repository
// and service instances. It is created by Wire() and handed to the HTTP
// server and the scheduler.
package di

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/analytics"
	"github.com/aristath/riskwatch/internal/clientdata"
	"github.com/aristath/riskwatch/internal/database"
	"github.com/aristath/riskwatch/internal/events"
	"github.com/aristath/riskwatch/internal/graph"
	"github.com/aristath/riskwatch/internal/modules/market"
	"github.com/aristath/riskwatch/internal/modules/risk"
	"github.com/aristath/riskwatch/internal/scheduler"
)

// Container holds all dependencies for the application
type Container struct {
	// Databases
	CoreDB  *database.DB // Relational core (companies, prices, news, risk scores)
	CacheDB *database.DB // client_data response cache

	// Stores
	Analytics *analytics.Store // DuckDB analytical replica
	Graph     *graph.Store     // Neo4j legal entity graph; nil when unreachable

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	CompanyRepo    *market.CompanyRepository
	PriceRepo      *market.PriceRepository
	NewsRepo       *market.NewsRepository
	SnapshotRepo   *risk.SnapshotRepository
	ClientDataRepo *clientdata.Repository

	// Services
	RiskEngine *risk.Engine

	// Scheduling
	Scheduler *scheduler.Scheduler

	log zerolog.Logger
}

// Close releases every store the container owns. Safe to call on a
// partially wired container.
func (c *Container) Close(ctx context.Context) {
	if c.Graph != nil {
		if err := c.Graph.Close(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Failed to close graph store")
		}
	}
	if c.Analytics != nil {
		if err := c.Analytics.Close(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to close analytics store")
		}
	}
	if c.CacheDB != nil {
		if err := c.CacheDB.Close(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to close cache database")
		}
	}
	if c.CoreDB != nil {
		if err := c.CoreDB.Close(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to close core database")
		}
	}
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	RiskRefresh   scheduler.Job
	AnalyticsSync scheduler.Job
	CacheCleanup  scheduler.Job
	WALCheckpoint scheduler.Job
	Backup        scheduler.Job // nil unless S3 backups are configured
}
