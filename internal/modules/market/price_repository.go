package market

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// PriceRepository handles stock price database operations
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "price").Logger(),
	}
}

const priceColumns = `id, ticker, date, open, high, low, close, volume, adj_close`

// InsertBatch inserts price rows in a single transaction, replacing
// rows that collide on (ticker, date).
func (r *PriceRepository) InsertBatch(prices []StockPrice) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO stock_prices (ticker, date, open, high, low, close, volume, adj_close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare price insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		_, err := stmt.Exec(
			strings.ToUpper(strings.TrimSpace(p.Ticker)),
			p.Date,
			p.Open,
			p.High,
			p.Low,
			p.Close,
			p.Volume,
			nullFloat(p.AdjClose),
		)
		if err != nil {
			return fmt.Errorf("failed to insert price for %s on %s: %w", p.Ticker, p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price batch: %w", err)
	}

	r.log.Debug().Int("rows", len(prices)).Msg("Price batch inserted")
	return nil
}

// History returns price rows for a ticker, most recent first
func (r *PriceRepository) History(ticker string, limit int) ([]StockPrice, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + priceColumns + ` FROM stock_prices
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(ticker)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var prices []StockPrice
	for rows.Next() {
		price, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, price)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return prices, nil
}

// HistoryRange returns price rows within an inclusive date range,
// most recent first. Empty bounds are open-ended.
func (r *PriceRepository) HistoryRange(ticker, startDate, endDate string, limit int) ([]StockPrice, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + priceColumns + " FROM stock_prices WHERE ticker = ?"
	params := []interface{}{strings.ToUpper(strings.TrimSpace(ticker))}

	if startDate != "" {
		query += " AND date >= ?"
		params = append(params, startDate)
	}
	if endDate != "" {
		query += " AND date <= ?"
		params = append(params, endDate)
	}

	query += " ORDER BY date DESC LIMIT ?"
	params = append(params, limit)

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	defer rows.Close()

	var prices []StockPrice
	for rows.Next() {
		price, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, price)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return prices, nil
}

// Latest returns the newest price as a quote with day-over-day change.
// Returns nil when the ticker has no price rows. A ticker with a single
// row gets zero change.
func (r *PriceRepository) Latest(ticker string) (*Quote, error) {
	prices, err := r.History(ticker, 2)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, nil
	}

	latest := prices[0]
	quote := &Quote{
		Ticker:  latest.Ticker,
		Price:   latest.Close,
		Volume:  latest.Volume,
		Date:    latest.Date,
		DayHigh: latest.High,
		DayLow:  latest.Low,
	}

	if len(prices) > 1 && prices[1].Close != 0 {
		previous := prices[1]
		quote.Change = latest.Close - previous.Close
		quote.ChangePercent = quote.Change / previous.Close * 100
	}

	return quote, nil
}

// Count returns the number of stored price rows
func (r *PriceRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM stock_prices").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return count, nil
}

func scanPrice(rows *sql.Rows) (StockPrice, error) {
	var p StockPrice
	var date interface{}
	var open, high, low, closePrice, adjClose sql.NullFloat64
	var volume sql.NullInt64

	err := rows.Scan(
		&p.ID,
		&p.Ticker,
		&date,
		&open,
		&high,
		&low,
		&closePrice,
		&volume,
		&adjClose,
	)
	if err != nil {
		return p, err
	}

	p.Date = dateString(date)
	p.Open = open.Float64
	p.High = high.Float64
	p.Low = low.Float64
	p.Close = closePrice.Float64
	p.Volume = volume.Int64
	if adjClose.Valid {
		p.AdjClose = &adjClose.Float64
	}

	return p, nil
}
