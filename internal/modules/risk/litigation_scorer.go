package risk

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/graph"
)

// LawsuitSource summarizes a ticker's active lawsuits from the legal graph.
type LawsuitSource interface {
	LawsuitSummary(ctx context.Context, ticker string) (*graph.LawsuitSummary, error)
}

// LitigationScorer rates legal exposure from active lawsuits: up to 5
// points for how many, 3 for average impact and 2 for high-severity
// cases. The graph is an optional backend, so any failure degrades to a
// neutral default instead of erroring.
type LitigationScorer struct {
	source LawsuitSource
	log    zerolog.Logger
}

// NewLitigationScorer creates a litigation scorer over the legal graph.
// A nil source scores the same neutral default as an unreachable graph.
func NewLitigationScorer(source LawsuitSource, log zerolog.Logger) *LitigationScorer {
	return &LitigationScorer{
		source: source,
		log:    log.With().Str("scorer", FactorLitigation).Logger(),
	}
}

// Name returns the factor name.
func (s *LitigationScorer) Name() string { return FactorLitigation }

// Score computes the litigation factor for a ticker.
func (s *LitigationScorer) Score(ctx context.Context, ticker string) (FactorScore, error) {
	if s.source == nil {
		s.log.Warn().Str("ticker", ticker).Msg("Legal graph unavailable, using default litigation score")
		return graphUnavailableScore(), nil
	}

	summary, err := s.source.LawsuitSummary(ctx, ticker)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Lawsuit summary failed, using default litigation score")
		return graphUnavailableScore(), nil
	}

	if summary == nil || summary.LawsuitCount == 0 {
		return FactorScore{
			Score: 1.0,
			Detail: map[string]interface{}{
				"lawsuit_count":       0,
				"avg_impact":          0.0,
				"high_severity_count": 0,
			},
		}, nil
	}

	countScore := math.Min(5.0, (float64(summary.LawsuitCount)/5.0)*5.0)
	impactScore := math.Min(3.0, (summary.AvgImpact/5.0)*3.0)
	severityScore := math.Min(2.0, (float64(summary.HighSeverityCount)/3.0)*2.0)
	total := countScore + impactScore + severityScore

	s.log.Info().
		Str("ticker", ticker).
		Float64("score", round2(total)).
		Int("lawsuits", summary.LawsuitCount).
		Float64("avg_impact", summary.AvgImpact).
		Int("high_severity", summary.HighSeverityCount).
		Msg("Litigation score calculated")

	return FactorScore{
		Score: round2(total),
		Detail: map[string]interface{}{
			"lawsuit_count":       summary.LawsuitCount,
			"avg_impact":          round2(summary.AvgImpact),
			"high_severity_count": summary.HighSeverityCount,
		},
	}, nil
}

func graphUnavailableScore() FactorScore {
	return FactorScore{
		Score:  3.0,
		Detail: map[string]interface{}{"reason": "graph_unavailable"},
	}
}
