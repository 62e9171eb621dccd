package risk

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/analytics"
)

// volatilityWindowDays bounds the return series a volatility score is
// computed from.
const volatilityWindowDays = 30

// VolatilitySource provides return statistics from the analytical replica.
type VolatilitySource interface {
	TickerVolatility(ctx context.Context, ticker string, days int) (*analytics.VolatilityMetrics, error)
}

// VolatilityScorer rates price risk from the standard deviation of daily
// returns. A 3% daily stddev maps to 5.0 and 6% or more saturates at 10.0.
type VolatilityScorer struct {
	source VolatilitySource
	log    zerolog.Logger
}

// NewVolatilityScorer creates a volatility scorer over the analytical store.
func NewVolatilityScorer(source VolatilitySource, log zerolog.Logger) *VolatilityScorer {
	return &VolatilityScorer{
		source: source,
		log:    log.With().Str("scorer", FactorVolatility).Logger(),
	}
}

// Name returns the factor name.
func (s *VolatilityScorer) Name() string { return FactorVolatility }

// Score computes the volatility factor for a ticker. A failed read
// degrades to the neutral default rather than erroring.
func (s *VolatilityScorer) Score(ctx context.Context, ticker string) (FactorScore, error) {
	metrics, err := s.source.TickerVolatility(ctx, ticker, volatilityWindowDays)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Volatility read failed, using neutral default")
		return FactorScore{
			Score:  5.0,
			Detail: map[string]interface{}{"reason": "store_unavailable"},
		}, nil
	}

	// A single return row leaves the stddev NULL; treat it as no data.
	if metrics == nil || metrics.DataPoints < 2 {
		s.log.Debug().Str("ticker", ticker).Msg("No usable price history for volatility score")
		return FactorScore{
			Score:  5.0,
			Detail: map[string]interface{}{"reason": "no_data"},
		}, nil
	}

	score := math.Min(10.0, (metrics.Volatility/0.03)*5.0)

	return FactorScore{
		Score: round2(score),
		Detail: map[string]interface{}{
			"volatility":  metrics.Volatility,
			"avg_return":  metrics.AvgReturn,
			"data_points": metrics.DataPoints,
		},
	}, nil
}
