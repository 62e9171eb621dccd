// Package risk scores companies on five weighted factors and persists
// the resulting snapshots for timeline queries. Volatility and anomaly
// inputs come from the analytical replica, sentiment from stored news,
// litigation from the legal graph; the regulatory factor is a baseline.
package risk

import (
	"context"
	"math"
	"time"
)

// Factor names, used as keys in assessments, weights and error maps.
const (
	FactorVolatility = "volatility"
	FactorLitigation = "litigation"
	FactorSentiment  = "sentiment"
	FactorAnomaly    = "financial_anomaly"
	FactorRegulatory = "regulatory"
)

// Risk level classifications for the composite score.
const (
	RiskLevelLow      = "Low"
	RiskLevelMedium   = "Medium"
	RiskLevelHigh     = "High"
	RiskLevelCritical = "Critical"
	RiskLevelUnknown  = "Unknown"
)

// Scorer produces one bounded risk factor for a ticker. Scores are in
// [0, 10], rounded to two decimals.
type Scorer interface {
	Name() string
	Score(ctx context.Context, ticker string) (FactorScore, error)
}

// FactorScore is a single factor result with scorer-specific detail.
type FactorScore struct {
	Score  float64                `json:"score"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// Assessment is the composite risk result for one ticker on one day.
type Assessment struct {
	Ticker       string                 `json:"ticker"`
	Date         string                 `json:"date"`
	OverallScore float64                `json:"overall_risk_score"`
	RiskLevel    string                 `json:"risk_level"`
	Factors      map[string]FactorScore `json:"components"`
	Weights      map[string]float64     `json:"weights"`
	Errors       map[string]string      `json:"errors,omitempty"`
	CalculatedAt time.Time              `json:"calculated_at"`
}

// Snapshot is one persisted risk_scores row. Weights carry the factor
// weighting that was applied at calculation time, so a stored score
// stays auditable after the configured weights change.
type Snapshot struct {
	ID           int64              `json:"id,omitempty"`
	Ticker       string             `json:"ticker"`
	Date         string             `json:"date"`
	OverallScore float64            `json:"overall_risk_score"`
	Volatility   float64            `json:"volatility_score"`
	Litigation   float64            `json:"litigation_score"`
	Sentiment    float64            `json:"sentiment_score"`
	Anomaly      float64            `json:"financial_anomaly_score"`
	Regulatory   float64            `json:"regulatory_score"`
	RiskLevel    string             `json:"risk_level"`
	Weights      map[string]float64 `json:"weights,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
}

// SnapshotFromAssessment flattens an assessment into its persisted row.
func SnapshotFromAssessment(a *Assessment) Snapshot {
	return Snapshot{
		Ticker:       a.Ticker,
		Date:         a.Date,
		OverallScore: a.OverallScore,
		Volatility:   a.Factors[FactorVolatility].Score,
		Litigation:   a.Factors[FactorLitigation].Score,
		Sentiment:    a.Factors[FactorSentiment].Score,
		Anomaly:      a.Factors[FactorAnomaly].Score,
		Regulatory:   a.Factors[FactorRegulatory].Score,
		RiskLevel:    a.RiskLevel,
		Weights:      a.Weights,
	}
}

// BatchResult is the per-ticker outcome of a batch calculation.
type BatchResult struct {
	Assessment *Assessment `json:"assessment,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Weights are the factor weights of the composite score. They must sum
// to 1.0; config validation enforces that before an engine is built.
type Weights struct {
	Volatility float64 `json:"volatility"`
	Litigation float64 `json:"litigation"`
	Sentiment  float64 `json:"sentiment"`
	Anomaly    float64 `json:"financial_anomaly"`
	Regulatory float64 `json:"regulatory"`
}

// DefaultWeights returns the standard factor weighting.
func DefaultWeights() Weights {
	return Weights{
		Volatility: 0.30,
		Litigation: 0.25,
		Sentiment:  0.20,
		Anomaly:    0.15,
		Regulatory: 0.10,
	}
}

// Map returns the weights keyed by factor name.
func (w Weights) Map() map[string]float64 {
	return map[string]float64{
		FactorVolatility: w.Volatility,
		FactorLitigation: w.Litigation,
		FactorSentiment:  w.Sentiment,
		FactorAnomaly:    w.Anomaly,
		FactorRegulatory: w.Regulatory,
	}
}

// Classify maps a composite score to its risk level. Lower bounds are
// inclusive: 3.0 is Medium, 6.0 is High, 8.0 is Critical.
func Classify(score float64) string {
	switch {
	case score < 3.0:
		return RiskLevelLow
	case score < 6.0:
		return RiskLevelMedium
	case score < 8.0:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// fallbackScores substitute for factors whose scorer failed or timed out.
var fallbackScores = map[string]float64{
	FactorVolatility: 5.0,
	FactorLitigation: 3.0,
	FactorSentiment:  5.0,
	FactorAnomaly:    2.0,
	FactorRegulatory: 2.0,
}

func fallbackScore(name string) float64 {
	if s, ok := fallbackScores[name]; ok {
		return s
	}
	return 5.0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
