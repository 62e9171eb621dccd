// Package di provides dependency injection for service construction.
package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/config"
	"github.com/aristath/riskwatch/internal/events"
	"github.com/aristath/riskwatch/internal/modules/risk"
)

// InitializeServices creates the event bus and the risk engine
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// The lawsuit source must stay an untyped nil when the graph store is
	// down; a typed nil *graph.Store would dodge the scorer's nil check.
	var lawsuits risk.LawsuitSource
	if container.Graph != nil {
		lawsuits = container.Graph
	}

	scorers := []risk.Scorer{
		risk.NewVolatilityScorer(container.Analytics, log),
		risk.NewLitigationScorer(lawsuits, log),
		risk.NewSentimentScorer(container.NewsRepo, log),
		risk.NewAnomalyScorer(container.Analytics, log),
		risk.NewRegulatoryScorer(),
	}

	weights := risk.Weights{
		Volatility: cfg.WeightVolatility,
		Litigation: cfg.WeightLitigation,
		Sentiment:  cfg.WeightSentiment,
		Anomaly:    cfg.WeightAnomaly,
		Regulatory: cfg.WeightRegulatory,
	}

	container.RiskEngine = risk.NewEngine(risk.EngineConfig{
		Scorers:       scorers,
		Weights:       weights,
		Snapshots:     container.SnapshotRepo,
		Events:        container.EventManager,
		FactorTimeout: time.Duration(cfg.FactorTimeoutSeconds) * time.Second,
		BatchWorkers:  cfg.BatchWorkers,
		Log:           log,
	})

	log.Info().Msg("All services initialized")

	return nil
}
