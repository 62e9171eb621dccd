// Package market provides access to tracked companies, their price
// history, and news coverage in the core database.
package market

// Company is a tracked company
type Company struct {
	ID          int64    `json:"id"`
	Ticker      string   `json:"ticker"`
	Name        string   `json:"name"`
	Sector      string   `json:"sector,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	MarketCap   *float64 `json:"market_cap,omitempty"`
	Description string   `json:"description,omitempty"`
	Website     string   `json:"website,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// StockPrice is one daily OHLCV row
type StockPrice struct {
	ID       int64    `json:"id,omitempty"`
	Ticker   string   `json:"ticker"`
	Date     string   `json:"date"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	Volume   int64    `json:"volume"`
	AdjClose *float64 `json:"adj_close,omitempty"`
}

// Quote is the latest price with day-over-day change
type Quote struct {
	Ticker        string  `json:"ticker"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	Date          string  `json:"date"`
	DayHigh       float64 `json:"day_high"`
	DayLow        float64 `json:"day_low"`
}

// NewsArticle is one news item with optional sentiment annotation
type NewsArticle struct {
	ID             int64    `json:"id,omitempty"`
	Ticker         string   `json:"ticker"`
	Headline       string   `json:"headline"`
	Summary        string   `json:"summary,omitempty"`
	Content        string   `json:"content,omitempty"`
	Source         string   `json:"source,omitempty"`
	Author         string   `json:"author,omitempty"`
	PublishedDate  string   `json:"published_date"`
	URL            string   `json:"url,omitempty"`
	SentimentScore *float64 `json:"sentiment_score,omitempty"`
	SentimentLabel string   `json:"sentiment_label,omitempty"`
}

// SentimentSummary aggregates sentiment over recent coverage
type SentimentSummary struct {
	Ticker        string   `json:"ticker"`
	ArticleCount  int      `json:"article_count"`
	ScoredCount   int      `json:"scored_count"`
	AverageScore  *float64 `json:"average_score"`
	PositiveCount int      `json:"positive_count"`
	NegativeCount int      `json:"negative_count"`
	NeutralCount  int      `json:"neutral_count"`
	Trend         string   `json:"trend"`
}
