package risk

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/modules/market"
)

const (
	// sentimentArticleLimit bounds how many recent articles feed the score.
	sentimentArticleLimit = 50
	// Sentiment scores at or beyond these edges count as positive or
	// negative in the detail breakdown.
	sentimentPositiveEdge = 0.05
	sentimentNegativeEdge = -0.05
)

// NewsSource lists the most recently published stored articles for a ticker.
type NewsSource interface {
	Recent(ticker string, limit int) ([]market.NewsArticle, error)
}

// SentimentScorer rates risk from news tone. Sentiment runs -1 to 1;
// uniformly negative coverage scores 10.0, uniformly positive 0.0 and
// no signal sits at the neutral 5.0.
type SentimentScorer struct {
	source NewsSource
	log    zerolog.Logger
}

// NewSentimentScorer creates a sentiment scorer over the news store.
func NewSentimentScorer(source NewsSource, log zerolog.Logger) *SentimentScorer {
	return &SentimentScorer{
		source: source,
		log:    log.With().Str("scorer", FactorSentiment).Logger(),
	}
}

// Name returns the factor name.
func (s *SentimentScorer) Name() string { return FactorSentiment }

// Score computes the sentiment factor for a ticker. A failed read
// degrades to the neutral default rather than erroring.
func (s *SentimentScorer) Score(ctx context.Context, ticker string) (FactorScore, error) {
	articles, err := s.source.Recent(ticker, sentimentArticleLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("News read failed, using neutral default")
		return FactorScore{
			Score:  5.0,
			Detail: map[string]interface{}{"reason": "store_unavailable"},
		}, nil
	}

	if len(articles) == 0 {
		s.log.Debug().Str("ticker", ticker).Msg("No stored news for sentiment score")
		return FactorScore{
			Score:  5.0,
			Detail: map[string]interface{}{"reason": "no_articles"},
		}, nil
	}

	var sum float64
	var scored, positive, negative int
	for _, a := range articles {
		if a.SentimentScore == nil {
			continue
		}
		v := *a.SentimentScore
		sum += v
		scored++
		switch {
		case v >= sentimentPositiveEdge:
			positive++
		case v <= sentimentNegativeEdge:
			negative++
		}
	}

	if scored == 0 {
		return FactorScore{
			Score: 5.0,
			Detail: map[string]interface{}{
				"article_count": len(articles),
				"reason":        "no_scored_articles",
			},
		}, nil
	}

	avg := sum / float64(scored)
	score := clamp(5.0-avg*5.0, 0, 10)

	return FactorScore{
		Score: round2(score),
		Detail: map[string]interface{}{
			"article_count":     len(articles),
			"average_sentiment": math.Round(avg*10000) / 10000,
			"positive_count":    positive,
			"negative_count":    negative,
			"neutral_count":     scored - positive - negative,
		},
	}, nil
}
