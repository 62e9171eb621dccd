package risk

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskwatch/internal/analytics"
	"github.com/aristath/riskwatch/internal/graph"
	"github.com/aristath/riskwatch/internal/modules/market"
)

type fakeVolatilitySource struct {
	metrics *analytics.VolatilityMetrics
	err     error
}

func (f *fakeVolatilitySource) TickerVolatility(_ context.Context, _ string, _ int) (*analytics.VolatilityMetrics, error) {
	return f.metrics, f.err
}

type fakeAnomalySource struct {
	points []analytics.AnomalyPoint
	err    error
}

func (f *fakeAnomalySource) DetectAnomalies(_ context.Context, _ string, _ float64) ([]analytics.AnomalyPoint, error) {
	return f.points, f.err
}

type fakeNewsSource struct {
	articles []market.NewsArticle
	err      error
}

func (f *fakeNewsSource) Recent(_ string, _ int) ([]market.NewsArticle, error) {
	return f.articles, f.err
}

type fakeLawsuitSource struct {
	summary *graph.LawsuitSummary
	err     error
}

func (f *fakeLawsuitSource) LawsuitSummary(_ context.Context, _ string) (*graph.LawsuitSummary, error) {
	return f.summary, f.err
}

func fptr(v float64) *float64 { return &v }

func TestVolatilityScorer(t *testing.T) {
	tests := []struct {
		name       string
		volatility float64
		expected   float64
	}{
		{"six percent saturates", 0.06, 10.0},
		{"three percent is medium", 0.03, 5.0},
		{"one and a half percent", 0.015, 2.5},
		{"extreme volatility capped", 0.50, 10.0},
		{"flat prices", 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeVolatilitySource{metrics: &analytics.VolatilityMetrics{
				Ticker:     "AAPL",
				Volatility: tt.volatility,
				AvgReturn:  0.001,
				DataPoints: 29,
			}}
			scorer := NewVolatilityScorer(source, zerolog.Nop())

			factor, err := scorer.Score(context.Background(), "AAPL")
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, factor.Score, 1e-9)
			assert.Equal(t, 29, factor.Detail["data_points"])
			assert.InDelta(t, 0.001, factor.Detail["avg_return"].(float64), 1e-12)
		})
	}
}

func TestVolatilityScorerNoData(t *testing.T) {
	scorer := NewVolatilityScorer(&fakeVolatilitySource{metrics: nil}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, 5.0, factor.Score)
	assert.Equal(t, "no_data", factor.Detail["reason"])
}

func TestVolatilityScorerSingleReturn(t *testing.T) {
	// One return row leaves the stddev undefined
	source := &fakeVolatilitySource{metrics: &analytics.VolatilityMetrics{Ticker: "AAPL", DataPoints: 1}}
	scorer := NewVolatilityScorer(source, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5.0, factor.Score)
	assert.Equal(t, "no_data", factor.Detail["reason"])
}

func TestVolatilityScorerStoreFailure(t *testing.T) {
	source := &fakeVolatilitySource{err: fmt.Errorf("replica offline")}
	scorer := NewVolatilityScorer(source, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5.0, factor.Score)
	assert.Equal(t, "store_unavailable", factor.Detail["reason"])
}

func anomalySeries(total, anomalous int, latestZ *float64) []analytics.AnomalyPoint {
	points := make([]analytics.AnomalyPoint, total)
	for i := range points {
		points[i] = analytics.AnomalyPoint{
			Date:      fmt.Sprintf("2024-01-%02d", total-i),
			Close:     100,
			IsAnomaly: i < anomalous,
		}
	}
	if total > 0 {
		points[0].ZScore = latestZ
	}
	return points
}

func TestAnomalyScorer(t *testing.T) {
	tests := []struct {
		name      string
		anomalous int
		expected  float64
	}{
		{"no anomalies", 0, 0.0},
		{"four anomalies", 4, 4.0},
		{"ten anomalies saturate", 10, 10.0},
		{"more than ten capped", 15, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeAnomalySource{points: anomalySeries(30, tt.anomalous, fptr(2.5))}
			scorer := NewAnomalyScorer(source, zerolog.Nop())

			factor, err := scorer.Score(context.Background(), "TSLA")
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, factor.Score, 1e-9)
			assert.Equal(t, tt.anomalous, factor.Detail["anomaly_count"])
			assert.Equal(t, 30, factor.Detail["recent_window"])
			assert.Equal(t, 2.5, factor.Detail["latest_z_score"])
		})
	}
}

func TestAnomalyScorerCountsOnlyRecentWindow(t *testing.T) {
	// 100 rows, most recent first: 2 anomalies up front, the rest beyond
	// the 30-row window.
	points := anomalySeries(100, 0, nil)
	points[0].IsAnomaly = true
	points[5].IsAnomaly = true
	points[60].IsAnomaly = true
	points[99].IsAnomaly = true

	scorer := NewAnomalyScorer(&fakeAnomalySource{points: points}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, factor.Score, 1e-9)
	assert.Equal(t, 2, factor.Detail["anomaly_count"])
	assert.Equal(t, 30, factor.Detail["recent_window"])
}

func TestAnomalyScorerNoData(t *testing.T) {
	scorer := NewAnomalyScorer(&fakeAnomalySource{}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, 2.0, factor.Score)
	assert.Equal(t, "no_data", factor.Detail["reason"])
}

func TestAnomalyScorerStoreFailure(t *testing.T) {
	scorer := NewAnomalyScorer(&fakeAnomalySource{err: fmt.Errorf("replica offline")}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, 2.0, factor.Score)
	assert.Equal(t, "store_unavailable", factor.Detail["reason"])
}

func TestAnomalyScorerNilZScore(t *testing.T) {
	// Flat prices leave the latest z-score undefined
	scorer := NewAnomalyScorer(&fakeAnomalySource{points: anomalySeries(10, 0, nil)}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "KO")
	require.NoError(t, err)
	assert.Equal(t, 0.0, factor.Score)
	assert.Nil(t, factor.Detail["latest_z_score"])
	assert.Equal(t, 10, factor.Detail["recent_window"])
}

func articlesWithScores(scores ...*float64) []market.NewsArticle {
	articles := make([]market.NewsArticle, len(scores))
	for i, s := range scores {
		articles[i] = market.NewsArticle{Ticker: "AAPL", Headline: fmt.Sprintf("story %d", i), SentimentScore: s}
	}
	return articles
}

func TestSentimentScorer(t *testing.T) {
	tests := []struct {
		name     string
		scores   []*float64
		expected float64
	}{
		{"maximally negative", []*float64{fptr(-1.0), fptr(-1.0)}, 10.0},
		{"maximally positive", []*float64{fptr(1.0), fptr(1.0)}, 0.0},
		{"neutral", []*float64{fptr(0.0)}, 5.0},
		{"mildly negative", []*float64{fptr(-0.2), fptr(-0.4)}, 6.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := NewSentimentScorer(&fakeNewsSource{articles: articlesWithScores(tt.scores...)}, zerolog.Nop())

			factor, err := scorer.Score(context.Background(), "AAPL")
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, factor.Score, 1e-9)
		})
	}
}

func TestSentimentScorerCounts(t *testing.T) {
	articles := articlesWithScores(fptr(0.8), fptr(0.05), fptr(-0.05), fptr(0.04), fptr(-0.6), nil)
	scorer := NewSentimentScorer(&fakeNewsSource{articles: articles}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)

	// The unscored article is excluded from averaging but counted
	assert.Equal(t, 6, factor.Detail["article_count"])
	assert.Equal(t, 2, factor.Detail["positive_count"])
	assert.Equal(t, 2, factor.Detail["negative_count"])
	assert.Equal(t, 1, factor.Detail["neutral_count"])
	assert.InDelta(t, 0.048, factor.Detail["average_sentiment"].(float64), 1e-9)
	assert.InDelta(t, 4.76, factor.Score, 1e-9)
}

func TestSentimentScorerNoArticles(t *testing.T) {
	scorer := NewSentimentScorer(&fakeNewsSource{}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, 5.0, factor.Score)
	assert.Equal(t, "no_articles", factor.Detail["reason"])
}

func TestSentimentScorerNoScoredArticles(t *testing.T) {
	scorer := NewSentimentScorer(&fakeNewsSource{articles: articlesWithScores(nil, nil)}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5.0, factor.Score)
	assert.Equal(t, "no_scored_articles", factor.Detail["reason"])
	assert.Equal(t, 2, factor.Detail["article_count"])
}

func TestSentimentScorerStoreFailure(t *testing.T) {
	scorer := NewSentimentScorer(&fakeNewsSource{err: fmt.Errorf("db locked")}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5.0, factor.Score)
	assert.Equal(t, "store_unavailable", factor.Detail["reason"])
}

func TestLitigationScorerNilSource(t *testing.T) {
	scorer := NewLitigationScorer(nil, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3.0, factor.Score)
	assert.Equal(t, "graph_unavailable", factor.Detail["reason"])
}

func TestLitigationScorerGraphFailure(t *testing.T) {
	scorer := NewLitigationScorer(&fakeLawsuitSource{err: fmt.Errorf("connection refused")}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3.0, factor.Score)
	assert.Equal(t, "graph_unavailable", factor.Detail["reason"])
}

func TestLitigationScorerNoLawsuits(t *testing.T) {
	scorer := NewLitigationScorer(&fakeLawsuitSource{summary: &graph.LawsuitSummary{}}, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1.0, factor.Score)
	assert.Equal(t, 0, factor.Detail["lawsuit_count"])
}

func TestLitigationScorerComposite(t *testing.T) {
	// 6 lawsuits cap the count term at 5.0, impact 4.0 of 5 gives 2.4,
	// 4 high severity cap the severity term at 2.0.
	source := &fakeLawsuitSource{summary: &graph.LawsuitSummary{
		LawsuitCount:      6,
		AvgImpact:         4.0,
		HighSeverityCount: 4,
	}}
	scorer := NewLitigationScorer(source, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 9.4, factor.Score, 1e-9)
	assert.Equal(t, 6, factor.Detail["lawsuit_count"])
	assert.InDelta(t, 4.0, factor.Detail["avg_impact"].(float64), 1e-9)
	assert.Equal(t, 4, factor.Detail["high_severity_count"])
}

func TestLitigationScorerMonotoneInCount(t *testing.T) {
	prev := 0.0
	for count := 1; count <= 10; count++ {
		source := &fakeLawsuitSource{summary: &graph.LawsuitSummary{LawsuitCount: count, AvgImpact: 2.0}}
		scorer := NewLitigationScorer(source, zerolog.Nop())

		factor, err := scorer.Score(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, factor.Score, prev, "score must not decrease as lawsuits grow")
		prev = factor.Score
	}
}

func TestLitigationScorerMonotoneInSeverity(t *testing.T) {
	prev := 0.0
	for hs := 0; hs <= 5; hs++ {
		source := &fakeLawsuitSource{summary: &graph.LawsuitSummary{LawsuitCount: 2, AvgImpact: 2.0, HighSeverityCount: hs}}
		scorer := NewLitigationScorer(source, zerolog.Nop())

		factor, err := scorer.Score(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, factor.Score, prev, "score must not decrease as severity grows")
		prev = factor.Score
	}
}

func TestLitigationScorerBounded(t *testing.T) {
	source := &fakeLawsuitSource{summary: &graph.LawsuitSummary{
		LawsuitCount:      100,
		AvgImpact:         50.0,
		HighSeverityCount: 100,
	}}
	scorer := NewLitigationScorer(source, zerolog.Nop())

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.0, factor.Score)
}

func TestRegulatoryScorer(t *testing.T) {
	scorer := NewRegulatoryScorer()

	factor, err := scorer.Score(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2.0, factor.Score)
	assert.Equal(t, "baseline", factor.Detail["status"])
	assert.Equal(t, FactorRegulatory, scorer.Name())
}

func TestScorerNames(t *testing.T) {
	assert.Equal(t, FactorVolatility, NewVolatilityScorer(&fakeVolatilitySource{}, zerolog.Nop()).Name())
	assert.Equal(t, FactorAnomaly, NewAnomalyScorer(&fakeAnomalySource{}, zerolog.Nop()).Name())
	assert.Equal(t, FactorSentiment, NewSentimentScorer(&fakeNewsSource{}, zerolog.Nop()).Name())
	assert.Equal(t, FactorLitigation, NewLitigationScorer(nil, zerolog.Nop()).Name())
}
