// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/clientdata"
	"github.com/aristath/riskwatch/internal/modules/market"
	"github.com/aristath/riskwatch/internal/modules/risk"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.CompanyRepo = market.NewCompanyRepository(container.CoreDB.Conn(), log)
	container.PriceRepo = market.NewPriceRepository(container.CoreDB.Conn(), log)
	container.NewsRepo = market.NewNewsRepository(container.CoreDB.Conn(), log)
	container.SnapshotRepo = risk.NewSnapshotRepository(container.CoreDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())

	log.Info().Msg("All repositories initialized")

	return nil
}
