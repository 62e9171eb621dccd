package risk

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotRepository persists calculated risk scores, one row per ticker
// per day.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new risk snapshot repository
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "risk_snapshot").Logger(),
	}
}

const snapshotColumns = `id, ticker, date, overall_risk_score, volatility_score, litigation_score, sentiment_score, financial_anomaly_score, regulatory_score, risk_level, weights, created_at`

// Upsert stores a snapshot, replacing any existing row for the same
// ticker and date.
func (r *SnapshotRepository) Upsert(s Snapshot) error {
	ticker := strings.ToUpper(strings.TrimSpace(s.Ticker))
	if ticker == "" {
		return fmt.Errorf("ticker is required for risk snapshot")
	}
	if s.Date == "" {
		return fmt.Errorf("date is required for risk snapshot")
	}

	weights, err := encodeWeights(s.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weight snapshot: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO risk_scores
		(ticker, date, overall_risk_score, volatility_score, litigation_score, sentiment_score, financial_anomaly_score, regulatory_score, risk_level, weights)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ticker,
		s.Date,
		s.OverallScore,
		s.Volatility,
		s.Litigation,
		s.Sentiment,
		s.Anomaly,
		s.Regulatory,
		s.RiskLevel,
		weights,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert risk snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit risk snapshot: %w", err)
	}

	r.log.Debug().
		Str("ticker", ticker).
		Str("date", s.Date).
		Float64("overall_score", s.OverallScore).
		Msg("Risk snapshot stored")

	return nil
}

// GetLatest returns the most recent snapshot for a ticker, or nil when
// none has been calculated yet.
func (r *SnapshotRepository) GetLatest(ticker string) (*Snapshot, error) {
	query := "SELECT " + snapshotColumns + ` FROM risk_scores
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT 1`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(ticker)))
	if err != nil {
		return nil, fmt.Errorf("failed to query latest risk snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	s, err := scanSnapshot(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan risk snapshot: %w", err)
	}

	return &s, nil
}

// Timeline returns up to `days` snapshots for a ticker, most recent
// first. Days above 365 are clamped, zero or negative falls back to 90.
func (r *SnapshotRepository) Timeline(ticker string, days int) ([]Snapshot, error) {
	if days <= 0 {
		days = 90
	}
	if days > 365 {
		days = 365
	}

	query := "SELECT " + snapshotColumns + ` FROM risk_scores
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(ticker)), days)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk timeline: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk timeline: %w", err)
	}

	return snapshots, nil
}

// RecentTickers returns tickers with stored snapshots, most recently
// scored first.
func (r *SnapshotRepository) RecentTickers(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ticker FROM risk_scores
		GROUP BY ticker
		ORDER BY MAX(date) DESC
		LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent tickers: %w", err)
	}

	return tickers, nil
}

// Count returns the number of stored snapshots.
func (r *SnapshotRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM risk_scores`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count risk snapshots: %w", err)
	}
	return count, nil
}

func scanSnapshot(rows *sql.Rows) (Snapshot, error) {
	var s Snapshot
	var date, createdAt interface{}
	var vol, lit, sent, anom, reg sql.NullFloat64
	var level, weights sql.NullString

	err := rows.Scan(
		&s.ID,
		&s.Ticker,
		&date,
		&s.OverallScore,
		&vol,
		&lit,
		&sent,
		&anom,
		&reg,
		&level,
		&weights,
		&createdAt,
	)
	if err != nil {
		return s, err
	}

	s.Date = dateString(date)
	s.Volatility = vol.Float64
	s.Litigation = lit.Float64
	s.Sentiment = sent.Float64
	s.Anomaly = anom.Float64
	s.Regulatory = reg.Float64
	s.RiskLevel = level.String
	s.CreatedAt = timestampString(createdAt)

	if weights.Valid && weights.String != "" {
		if err := json.Unmarshal([]byte(weights.String), &s.Weights); err != nil {
			return s, fmt.Errorf("failed to decode weight snapshot: %w", err)
		}
	}

	return s, nil
}

// encodeWeights serializes the applied weight vector for storage. Rows
// without one (synthetic backfill) store NULL.
func encodeWeights(w map[string]float64) (interface{}, error) {
	if len(w) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// dateString normalizes a scanned DATE column to "2006-01-02". Depending
// on the driver a declared date column surfaces as time.Time or as the
// stored text.
func dateString(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

// timestampString normalizes a scanned TIMESTAMP column to
// "2006-01-02 15:04:05", with the same driver tolerance as dateString.
func timestampString(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05")
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
