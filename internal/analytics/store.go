// Package analytics provides the DuckDB analytical replica.
//
// The relational core stays in SQLite; DuckDB attaches it and copies the
// tables into columnar form so window-function heavy queries (volatility,
// anomaly detection, sector performance) stay off the transactional path.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/rs/zerolog"
)

// SyncTables are the relational tables mirrored into the replica.
var SyncTables = []string{"companies", "stock_prices", "news_articles", "risk_scores"}

// Store manages the DuckDB connection and analytical queries
type Store struct {
	db         *sql.DB
	path       string
	sqlitePath string
	log        zerolog.Logger
}

// NewStore opens (or creates) the DuckDB database and prepares the
// sqlite extension used to attach the relational core.
func NewStore(duckdbPath, sqlitePath string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", duckdbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb at %s: %w", duckdbPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	if _, err := db.ExecContext(ctx, "INSTALL sqlite; LOAD sqlite;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sqlite extension: %w", err)
	}

	return &Store{
		db:         db,
		path:       duckdbPath,
		sqlitePath: sqlitePath,
		log:        log.With().Str("component", "analytics_store").Logger(),
	}, nil
}

// Close closes the DuckDB connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the analytical connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the DuckDB file path
func (s *Store) Path() string {
	return s.path
}

// BackupTo checkpoints the replica and copies its database file to destPath.
// The replica is rebuilt from the relational core on every sync, so a
// checkpointed file copy is a sufficient backup.
func (s *Store) BackupTo(ctx context.Context, destPath string) error {
	if s.path == "" {
		return fmt.Errorf("replica has no backing file")
	}

	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint before backup: %w", err)
	}

	src, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open replica file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy replica file: %w", err)
	}

	return dst.Sync()
}

// SyncFromRelational attaches the SQLite core and copies each table into
// the replica. Returns the names of the tables that were refreshed.
func (s *Store) SyncFromRelational(ctx context.Context) ([]string, error) {
	attach := fmt.Sprintf("ATTACH IF NOT EXISTS '%s' AS sqlite_db (TYPE SQLITE)", s.sqlitePath)
	if _, err := s.db.ExecContext(ctx, attach); err != nil {
		return nil, fmt.Errorf("failed to attach sqlite database: %w", err)
	}

	synced := make([]string, 0, len(SyncTables))
	for _, table := range SyncTables {
		query := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM sqlite_db.%s", table, table)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			s.log.Warn().Err(err).Str("table", table).Msg("Could not sync table into replica")
			continue
		}
		synced = append(synced, table)
	}

	if len(synced) == 0 {
		return nil, fmt.Errorf("no tables synced into analytical replica")
	}

	s.log.Info().Strs("tables", synced).Msg("Analytical replica refreshed")
	return synced, nil
}

// VolatilityMetrics holds return statistics for a single ticker
type VolatilityMetrics struct {
	Ticker       string   `json:"ticker"`
	AvgReturn    float64  `json:"avg_return"`
	Volatility   float64  `json:"volatility"`
	MinReturn    float64  `json:"min_return"`
	MaxReturn    float64  `json:"max_return"`
	SharpeApprox *float64 `json:"sharpe_approx,omitempty"`
	DataPoints   int      `json:"data_points"`
}

// TickerVolatility computes return statistics over the most recent `days`
// trading rows for one ticker. Returns (nil, nil) when there is not enough
// price history to form a single daily return.
func (s *Store) TickerVolatility(ctx context.Context, ticker string, days int) (*VolatilityMetrics, error) {
	query := `
		WITH daily_returns AS (
			SELECT
				ticker,
				date,
				close,
				(close - LAG(close) OVER (PARTITION BY ticker ORDER BY date)) /
					LAG(close) OVER (PARTITION BY ticker ORDER BY date) AS daily_return
			FROM stock_prices
			WHERE ticker = ?
			ORDER BY date DESC
			LIMIT ?
		)
		SELECT
			ticker,
			AVG(daily_return)                                   AS avg_return,
			STDDEV(daily_return)                                AS volatility,
			MIN(daily_return)                                   AS min_return,
			MAX(daily_return)                                   AS max_return,
			AVG(daily_return) / NULLIF(STDDEV(daily_return), 0) AS sharpe_approx,
			CAST(COUNT(daily_return) AS BIGINT)                 AS data_points
		FROM daily_returns
		WHERE daily_return IS NOT NULL
		GROUP BY ticker
	`

	var m VolatilityMetrics
	var volatility, sharpe sql.NullFloat64

	err := s.db.QueryRowContext(ctx, query, ticker, days).Scan(
		&m.Ticker, &m.AvgReturn, &volatility, &m.MinReturn, &m.MaxReturn, &sharpe, &m.DataPoints,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query volatility metrics: %w", err)
	}

	// STDDEV is NULL with a single return row
	if volatility.Valid {
		m.Volatility = volatility.Float64
	}
	if sharpe.Valid {
		m.SharpeApprox = &sharpe.Float64
	}

	return &m, nil
}

// AllVolatility computes return statistics for every ticker, each over its
// own most recent `days` trading rows, ordered most volatile first.
func (s *Store) AllVolatility(ctx context.Context, days int) ([]VolatilityMetrics, error) {
	query := `
		WITH recent AS (
			SELECT ticker, date, close
			FROM stock_prices
			QUALIFY ROW_NUMBER() OVER (PARTITION BY ticker ORDER BY date DESC) <= ?
		),
		daily_returns AS (
			SELECT
				ticker,
				(close - LAG(close) OVER (PARTITION BY ticker ORDER BY date)) /
					LAG(close) OVER (PARTITION BY ticker ORDER BY date) AS daily_return
			FROM recent
		)
		SELECT
			ticker,
			AVG(daily_return)                                   AS avg_return,
			STDDEV(daily_return)                                AS volatility,
			MIN(daily_return)                                   AS min_return,
			MAX(daily_return)                                   AS max_return,
			AVG(daily_return) / NULLIF(STDDEV(daily_return), 0) AS sharpe_approx,
			CAST(COUNT(daily_return) AS BIGINT)                 AS data_points
		FROM daily_returns
		WHERE daily_return IS NOT NULL
		GROUP BY ticker
		ORDER BY volatility DESC
	`

	rows, err := s.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query volatility metrics: %w", err)
	}
	defer rows.Close()

	var metrics []VolatilityMetrics
	for rows.Next() {
		var m VolatilityMetrics
		var volatility, sharpe sql.NullFloat64

		if err := rows.Scan(&m.Ticker, &m.AvgReturn, &volatility, &m.MinReturn, &m.MaxReturn, &sharpe, &m.DataPoints); err != nil {
			return nil, fmt.Errorf("failed to scan volatility metrics: %w", err)
		}
		if volatility.Valid {
			m.Volatility = volatility.Float64
		}
		if sharpe.Valid {
			m.SharpeApprox = &sharpe.Float64
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating volatility metrics: %w", err)
	}

	return metrics, nil
}

// AnomalyPoint is a single price observation scored against its trailing
// 30-row moving window.
type AnomalyPoint struct {
	Date      string   `json:"date"`
	Close     float64  `json:"close"`
	MovingAvg float64  `json:"moving_avg"`
	MovingStd float64  `json:"moving_std"`
	ZScore    *float64 `json:"z_score"`
	IsAnomaly bool     `json:"is_anomaly"`
}

// DetectAnomalies flags price points whose z-score against a trailing
// 30-row window exceeds the threshold. Returns up to 100 rows, most
// recent first. A zero moving std yields a NULL z-score and is never
// counted as an anomaly.
func (s *Store) DetectAnomalies(ctx context.Context, ticker string, threshold float64) ([]AnomalyPoint, error) {
	query := `
		WITH price_stats AS (
			SELECT
				ticker,
				date,
				close,
				AVG(close) OVER (
					PARTITION BY ticker
					ORDER BY date
					ROWS BETWEEN 30 PRECEDING AND CURRENT ROW
				) AS moving_avg,
				STDDEV(close) OVER (
					PARTITION BY ticker
					ORDER BY date
					ROWS BETWEEN 30 PRECEDING AND CURRENT ROW
				) AS moving_std
			FROM stock_prices
			WHERE ticker = ?
		)
		SELECT
			date,
			close,
			moving_avg,
			moving_std,
			(close - moving_avg) / NULLIF(moving_std, 0) AS z_score,
			CASE
				WHEN ABS((close - moving_avg) / NULLIF(moving_std, 0)) > ?
				THEN true
				ELSE false
			END AS is_anomaly
		FROM price_stats
		WHERE moving_std IS NOT NULL
		ORDER BY date DESC
		LIMIT 100
	`

	rows, err := s.db.QueryContext(ctx, query, ticker, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query price anomalies: %w", err)
	}
	defer rows.Close()

	var points []AnomalyPoint
	for rows.Next() {
		var p AnomalyPoint
		var date time.Time
		var zScore sql.NullFloat64

		if err := rows.Scan(&date, &p.Close, &p.MovingAvg, &p.MovingStd, &zScore, &p.IsAnomaly); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly point: %w", err)
		}
		p.Date = date.Format("2006-01-02")
		if zScore.Valid {
			p.ZScore = &zScore.Float64
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomaly points: %w", err)
	}

	return points, nil
}

// SectorPerformance holds aggregate return statistics for one sector
type SectorPerformance struct {
	Sector       string   `json:"sector"`
	NumStocks    int      `json:"num_stocks"`
	AvgReturnPct float64  `json:"avg_return_pct"`
	Volatility   *float64 `json:"volatility,omitempty"`
	MinReturnPct float64  `json:"min_return_pct"`
	MaxReturnPct float64  `json:"max_return_pct"`
}

// SectorPerformanceSince aggregates percentage returns by sector over the
// trailing window, best performing sector first.
func (s *Store) SectorPerformanceSince(ctx context.Context, days int) ([]SectorPerformance, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	query := `
		WITH recent_prices AS (
			SELECT
				sp.ticker,
				c.sector,
				sp.date,
				sp.close,
				FIRST_VALUE(sp.close) OVER (
					PARTITION BY sp.ticker
					ORDER BY sp.date
				) AS start_price
			FROM stock_prices sp
			JOIN companies c ON sp.ticker = c.ticker
			WHERE sp.date >= CAST(? AS DATE)
				AND c.sector IS NOT NULL
		)
		SELECT
			sector,
			COUNT(DISTINCT ticker)                               AS num_stocks,
			AVG((close - start_price) / start_price * 100)       AS avg_return_pct,
			STDDEV((close - start_price) / start_price * 100)    AS volatility,
			MIN((close - start_price) / start_price * 100)       AS min_return_pct,
			MAX((close - start_price) / start_price * 100)       AS max_return_pct
		FROM recent_prices
		GROUP BY sector
		ORDER BY avg_return_pct DESC
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query sector performance: %w", err)
	}
	defer rows.Close()

	var sectors []SectorPerformance
	for rows.Next() {
		var sp SectorPerformance
		var volatility sql.NullFloat64

		if err := rows.Scan(&sp.Sector, &sp.NumStocks, &sp.AvgReturnPct, &volatility, &sp.MinReturnPct, &sp.MaxReturnPct); err != nil {
			return nil, fmt.Errorf("failed to scan sector performance: %w", err)
		}
		if volatility.Valid {
			sp.Volatility = &volatility.Float64
		}
		sectors = append(sectors, sp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sector performance: %w", err)
	}

	return sectors, nil
}

// SentimentTrend holds per-day sentiment aggregates for a ticker
type SentimentTrend struct {
	Date                string   `json:"date"`
	ArticleCount        int      `json:"article_count"`
	AvgSentiment        float64  `json:"avg_sentiment"`
	SentimentVolatility *float64 `json:"sentiment_volatility,omitempty"`
	PositiveCount       int      `json:"positive_count"`
	NegativeCount       int      `json:"negative_count"`
	NeutralCount        int      `json:"neutral_count"`
}

// SentimentTrends aggregates news sentiment by day over the trailing
// window, most recent day first.
func (s *Store) SentimentTrends(ctx context.Context, ticker string, days int) ([]SentimentTrend, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	query := `
		SELECT
			DATE_TRUNC('day', published_date)                                              AS date,
			COUNT(*)                                                                       AS article_count,
			AVG(sentiment_score)                                                           AS avg_sentiment,
			STDDEV(sentiment_score)                                                        AS sentiment_volatility,
			CAST(SUM(CASE WHEN sentiment_label = 'positive' THEN 1 ELSE 0 END) AS BIGINT)  AS positive_count,
			CAST(SUM(CASE WHEN sentiment_label = 'negative' THEN 1 ELSE 0 END) AS BIGINT)  AS negative_count,
			CAST(SUM(CASE WHEN sentiment_label = 'neutral' THEN 1 ELSE 0 END) AS BIGINT)   AS neutral_count
		FROM news_articles
		WHERE ticker = ?
			AND published_date >= CAST(? AS TIMESTAMP)
		GROUP BY date
		ORDER BY date DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ticker, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment trends: %w", err)
	}
	defer rows.Close()

	var trends []SentimentTrend
	for rows.Next() {
		var tr SentimentTrend
		var date time.Time
		var avgSentiment, sentimentVol sql.NullFloat64

		if err := rows.Scan(&date, &tr.ArticleCount, &avgSentiment, &sentimentVol, &tr.PositiveCount, &tr.NegativeCount, &tr.NeutralCount); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment trend: %w", err)
		}
		tr.Date = date.Format("2006-01-02")
		if avgSentiment.Valid {
			tr.AvgSentiment = avgSentiment.Float64
		}
		if sentimentVol.Valid {
			tr.SentimentVolatility = &sentimentVol.Float64
		}
		trends = append(trends, tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sentiment trends: %w", err)
	}

	return trends, nil
}

// RiskTrendBucket holds weekly risk score aggregates for a ticker
type RiskTrendBucket struct {
	Ticker        string   `json:"ticker"`
	Week          string   `json:"week"`
	AvgRisk       float64  `json:"avg_risk"`
	MaxRisk       float64  `json:"max_risk"`
	MinRisk       float64  `json:"min_risk"`
	AvgVolatility *float64 `json:"avg_volatility,omitempty"`
	AvgSentiment  *float64 `json:"avg_sentiment,omitempty"`
}

// RiskTrend aggregates persisted risk scores into weekly buckets over the
// trailing window, most recent week first.
func (s *Store) RiskTrend(ctx context.Context, ticker string, days int) ([]RiskTrendBucket, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	query := `
		SELECT
			ticker,
			DATE_TRUNC('week', date)   AS week,
			AVG(overall_risk_score)    AS avg_risk,
			MAX(overall_risk_score)    AS max_risk,
			MIN(overall_risk_score)    AS min_risk,
			AVG(volatility_score)      AS avg_volatility,
			AVG(sentiment_score)       AS avg_sentiment
		FROM risk_scores
		WHERE ticker = ?
			AND date >= CAST(? AS DATE)
		GROUP BY ticker, week
		ORDER BY week DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ticker, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk trend: %w", err)
	}
	defer rows.Close()

	var buckets []RiskTrendBucket
	for rows.Next() {
		var b RiskTrendBucket
		var week time.Time
		var avgVol, avgSent sql.NullFloat64

		if err := rows.Scan(&b.Ticker, &week, &b.AvgRisk, &b.MaxRisk, &b.MinRisk, &avgVol, &avgSent); err != nil {
			return nil, fmt.Errorf("failed to scan risk trend bucket: %w", err)
		}
		b.Week = week.Format("2006-01-02")
		if avgVol.Valid {
			b.AvgVolatility = &avgVol.Float64
		}
		if avgSent.Valid {
			b.AvgSentiment = &avgSent.Float64
		}
		buckets = append(buckets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk trend: %w", err)
	}

	return buckets, nil
}
