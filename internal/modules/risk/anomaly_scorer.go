package risk

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/analytics"
)

const (
	// anomalyZThreshold flags a price point whose z-score against its
	// trailing window exceeds this value.
	anomalyZThreshold = 2.0
	// anomalyRecentRows is how many of the most recent points count
	// toward the score.
	anomalyRecentRows = 30
)

// AnomalySource provides z-score flagged price points from the replica.
type AnomalySource interface {
	DetectAnomalies(ctx context.Context, ticker string, threshold float64) ([]analytics.AnomalyPoint, error)
}

// AnomalyScorer rates risk from unusual price moves. Ten or more flagged
// points inside the recent window saturate the score at 10.0.
type AnomalyScorer struct {
	source AnomalySource
	log    zerolog.Logger
}

// NewAnomalyScorer creates an anomaly scorer over the analytical store.
func NewAnomalyScorer(source AnomalySource, log zerolog.Logger) *AnomalyScorer {
	return &AnomalyScorer{
		source: source,
		log:    log.With().Str("scorer", FactorAnomaly).Logger(),
	}
}

// Name returns the factor name.
func (s *AnomalyScorer) Name() string { return FactorAnomaly }

// Score computes the financial anomaly factor for a ticker. A failed
// read degrades to the low-risk default rather than erroring.
func (s *AnomalyScorer) Score(ctx context.Context, ticker string) (FactorScore, error) {
	points, err := s.source.DetectAnomalies(ctx, ticker, anomalyZThreshold)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Anomaly read failed, using low-risk default")
		return FactorScore{
			Score:  2.0,
			Detail: map[string]interface{}{"reason": "store_unavailable"},
		}, nil
	}

	if len(points) == 0 {
		s.log.Debug().Str("ticker", ticker).Msg("No price history for anomaly score")
		return FactorScore{
			Score:  2.0,
			Detail: map[string]interface{}{"reason": "no_data"},
		}, nil
	}

	// Points arrive most recent first.
	recent := points
	if len(recent) > anomalyRecentRows {
		recent = recent[:anomalyRecentRows]
	}

	count := 0
	for _, p := range recent {
		if p.IsAnomaly {
			count++
		}
	}

	detail := map[string]interface{}{
		"anomaly_count": count,
		"recent_window": len(recent),
	}
	if z := points[0].ZScore; z != nil {
		detail["latest_z_score"] = round2(*z)
	} else {
		detail["latest_z_score"] = nil
	}

	score := math.Min(10.0, (float64(count)/10.0)*10.0)

	return FactorScore{Score: round2(score), Detail: detail}, nil
}
