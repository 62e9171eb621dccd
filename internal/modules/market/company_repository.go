package market

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CompanyRepository handles company database operations
type CompanyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sql.DB, log zerolog.Logger) *CompanyRepository {
	return &CompanyRepository{
		db:  db,
		log: log.With().Str("repo", "company").Logger(),
	}
}

const companyColumns = `id, ticker, name, sector, industry, market_cap, description, website, created_at, updated_at`

// Upsert inserts or updates a company by ticker.
// ON CONFLICT keeps the existing row id so price and news rows stay attached.
func (r *CompanyRepository) Upsert(c Company) error {
	ticker := strings.ToUpper(strings.TrimSpace(c.Ticker))
	if ticker == "" {
		return fmt.Errorf("ticker is required for company upsert")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required for company upsert")
	}

	query := `
		INSERT INTO companies (ticker, name, sector, industry, market_cap, description, website)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			industry = excluded.industry,
			market_cap = excluded.market_cap,
			description = excluded.description,
			website = excluded.website,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.Exec(query,
		ticker,
		c.Name,
		nullString(c.Sector),
		nullString(c.Industry),
		nullFloat(c.MarketCap),
		nullString(c.Description),
		nullString(c.Website),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company %s: %w", ticker, err)
	}

	r.log.Info().Str("ticker", ticker).Msg("Company upserted")
	return nil
}

// GetByTicker returns a company by ticker, or nil when not tracked
func (r *CompanyRepository) GetByTicker(ticker string) (*Company, error) {
	query := "SELECT " + companyColumns + " FROM companies WHERE ticker = ?"

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(ticker)))
	if err != nil {
		return nil, fmt.Errorf("failed to query company: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	company, err := scanCompany(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}

	return &company, nil
}

// GetAll returns all tracked companies ordered by name
func (r *CompanyRepository) GetAll() ([]Company, error) {
	query := "SELECT " + companyColumns + " FROM companies ORDER BY name"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, company)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}

	return companies, nil
}

// GetTickers returns all tracked tickers ordered by ticker
func (r *CompanyRepository) GetTickers() ([]string, error) {
	rows, err := r.db.Query("SELECT ticker FROM companies ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
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
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}

	return tickers, nil
}

// Count returns the number of tracked companies
func (r *CompanyRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM companies").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return count, nil
}

func scanCompany(rows *sql.Rows) (Company, error) {
	var c Company
	var sector, industry, description, website sql.NullString
	var createdAt, updatedAt interface{}
	var marketCap sql.NullFloat64

	err := rows.Scan(
		&c.ID,
		&c.Ticker,
		&c.Name,
		&sector,
		&industry,
		&marketCap,
		&description,
		&website,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return c, err
	}

	c.Sector = sector.String
	c.Industry = industry.String
	c.Description = description.String
	c.Website = website.String
	c.CreatedAt = timestampString(createdAt)
	c.UpdatedAt = timestampString(updatedAt)
	if marketCap.Valid {
		c.MarketCap = &marketCap.Float64
	}

	return c, nil
}

// nullString converts an empty string to a SQL NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullFloat converts a nil pointer to a SQL NULL
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
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
