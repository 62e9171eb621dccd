package market

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// NewsRepository handles news article database operations
type NewsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewNewsRepository creates a new news repository
func NewNewsRepository(db *sql.DB, log zerolog.Logger) *NewsRepository {
	return &NewsRepository{
		db:  db,
		log: log.With().Str("repo", "news").Logger(),
	}
}

const newsColumns = `id, ticker, headline, summary, content, source, author, published_date, url, sentiment_score, sentiment_label`

// Insert stores a news article. Articles with an already-seen URL are
// silently skipped.
func (r *NewsRepository) Insert(article NewsArticle) error {
	ticker := strings.ToUpper(strings.TrimSpace(article.Ticker))
	if ticker == "" {
		return fmt.Errorf("ticker is required for news insert")
	}
	if strings.TrimSpace(article.Headline) == "" {
		return fmt.Errorf("headline is required for news insert")
	}

	query := `
		INSERT OR IGNORE INTO news_articles
		(ticker, headline, summary, content, source, author, published_date, url, sentiment_score, sentiment_label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		ticker,
		article.Headline,
		nullString(article.Summary),
		nullString(article.Content),
		nullString(article.Source),
		nullString(article.Author),
		article.PublishedDate,
		nullString(article.URL),
		nullFloat(article.SentimentScore),
		nullString(article.SentimentLabel),
	)
	if err != nil {
		return fmt.Errorf("failed to insert news article: %w", err)
	}

	return nil
}

// Recent returns the newest articles for a ticker
func (r *NewsRepository) Recent(ticker string, limit int) ([]NewsArticle, error) {
	if limit <= 0 {
		limit = 20
	}

	query := "SELECT " + newsColumns + ` FROM news_articles
		WHERE ticker = ?
		ORDER BY published_date DESC
		LIMIT ?`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(ticker)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent news: %w", err)
	}
	defer rows.Close()

	var articles []NewsArticle
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan news article: %w", err)
		}
		articles = append(articles, article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating news articles: %w", err)
	}

	return articles, nil
}

// SentimentSummary aggregates sentiment over the most recent articles.
// Articles without a sentiment score count toward the total but not the
// average or the label counts.
func (r *NewsRepository) SentimentSummary(ticker string, limit int) (*SentimentSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	query := `
		SELECT
			COUNT(*),
			COUNT(sentiment_score),
			AVG(sentiment_score),
			SUM(CASE WHEN sentiment_label = 'positive' THEN 1 ELSE 0 END),
			SUM(CASE WHEN sentiment_label = 'negative' THEN 1 ELSE 0 END),
			SUM(CASE WHEN sentiment_label = 'neutral' THEN 1 ELSE 0 END)
		FROM (
			SELECT sentiment_score, sentiment_label
			FROM news_articles
			WHERE ticker = ?
			ORDER BY published_date DESC
			LIMIT ?
		)
	`

	summary := &SentimentSummary{Ticker: ticker}
	var avg sql.NullFloat64
	var positive, negative, neutral sql.NullInt64

	err := r.db.QueryRow(query, ticker, limit).Scan(
		&summary.ArticleCount,
		&summary.ScoredCount,
		&avg,
		&positive,
		&negative,
		&neutral,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment summary: %w", err)
	}

	if avg.Valid {
		summary.AverageScore = &avg.Float64
	}
	summary.PositiveCount = int(positive.Int64)
	summary.NegativeCount = int(negative.Int64)
	summary.NeutralCount = int(neutral.Int64)
	summary.Trend = sentimentTrendLabel(summary.AverageScore)

	return summary, nil
}

// sentimentTrendLabel classifies an average sentiment score in [-1, 1]
func sentimentTrendLabel(avg *float64) string {
	if avg == nil {
		return "unknown"
	}
	switch {
	case *avg > 0.1:
		return "positive"
	case *avg < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}

// Count returns the number of stored articles
func (r *NewsRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM news_articles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count news articles: %w", err)
	}
	return count, nil
}

func scanArticle(rows *sql.Rows) (NewsArticle, error) {
	var a NewsArticle
	var summary, content, source, author, url, label sql.NullString
	var published interface{}
	var score sql.NullFloat64

	err := rows.Scan(
		&a.ID,
		&a.Ticker,
		&a.Headline,
		&summary,
		&content,
		&source,
		&author,
		&published,
		&url,
		&score,
		&label,
	)
	if err != nil {
		return a, err
	}

	a.PublishedDate = timestampString(published)
	a.Summary = summary.String
	a.Content = content.String
	a.Source = source.String
	a.Author = author.String
	a.URL = url.String
	a.SentimentLabel = label.String
	if score.Valid {
		a.SentimentScore = &score.Float64
	}

	return a, nil
}
