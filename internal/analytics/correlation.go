package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/riskwatch/pkg/formulas"
)

// CorrelationMatrix holds a pairwise correlation matrix for a set of tickers
type CorrelationMatrix struct {
	Tickers []string    `json:"tickers"`
	Matrix  [][]float64 `json:"matrix"`
	Days    int         `json:"days"`
}

// returnObservation is one daily return for one ticker
type returnObservation struct {
	date   string
	ticker string
	ret    float64
}

// Correlations computes the pairwise Pearson correlation of daily returns
// for the given tickers over the trailing window. Pairs are correlated
// over the dates where both tickers have an observation; a pair with
// fewer than two shared dates gets correlation 0.
func (s *Store) Correlations(ctx context.Context, tickers []string, days int) (*CorrelationMatrix, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("at least one ticker is required")
	}

	observations, err := s.dailyReturns(ctx, tickers, days)
	if err != nil {
		return nil, err
	}

	// Pivot: ticker -> date -> return
	byTicker := make(map[string]map[string]float64, len(tickers))
	for _, t := range tickers {
		byTicker[t] = make(map[string]float64)
	}
	for _, obs := range observations {
		if series, ok := byTicker[obs.ticker]; ok {
			series[obs.date] = obs.ret
		}
	}

	n := len(tickers)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			x, y := alignSeries(byTicker[tickers[i]], byTicker[tickers[j]])
			corr := 0.0
			if len(x) >= 2 {
				corr = formulas.Correlation(x, y)
			}
			matrix[i][j] = corr
			matrix[j][i] = corr
		}
	}

	return &CorrelationMatrix{
		Tickers: tickers,
		Matrix:  matrix,
		Days:    days,
	}, nil
}

// dailyReturns fetches per-ticker daily returns over the trailing window
func (s *Store) dailyReturns(ctx context.Context, tickers []string, days int) ([]returnObservation, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tickers)), ",")
	query := fmt.Sprintf(`
		WITH daily_returns AS (
			SELECT
				date,
				ticker,
				(close - LAG(close) OVER (PARTITION BY ticker ORDER BY date)) /
					LAG(close) OVER (PARTITION BY ticker ORDER BY date) AS return
			FROM stock_prices
			WHERE ticker IN (%s)
				AND date >= CAST(? AS DATE)
		)
		SELECT date, ticker, return
		FROM daily_returns
		WHERE return IS NOT NULL
		ORDER BY date
	`, placeholders)

	args := make([]interface{}, 0, len(tickers)+1)
	for _, t := range tickers {
		args = append(args, t)
	}
	args = append(args, cutoff)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily returns: %w", err)
	}
	defer rows.Close()

	var observations []returnObservation
	for rows.Next() {
		var obs returnObservation
		var date time.Time

		if err := rows.Scan(&date, &obs.ticker, &obs.ret); err != nil {
			return nil, fmt.Errorf("failed to scan daily return: %w", err)
		}
		obs.date = date.Format("2006-01-02")
		observations = append(observations, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily returns: %w", err)
	}

	return observations, nil
}

// alignSeries returns the paired values for dates present in both series,
// in ascending date order.
func alignSeries(a, b map[string]float64) ([]float64, []float64) {
	shared := make([]string, 0, len(a))
	for date := range a {
		if _, ok := b[date]; ok {
			shared = append(shared, date)
		}
	}
	sort.Strings(shared)

	x := make([]float64, len(shared))
	y := make([]float64, len(shared))
	for i, date := range shared {
		x[i] = a[date]
		y[i] = b[date]
	}
	return x, y
}
