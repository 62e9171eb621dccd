// Package main seeds the RiskWatch databases with a demo dataset so the
// API serves data without any external feeds: five large-cap companies,
// a year of random-walk prices, sample news with sentiment, and a legal
// graph in Neo4j when one is reachable. It finishes by scoring every
// seeded ticker and refreshing the analytical replica.
//
// The same seed value always produces the same dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/aristath/riskwatch/internal/config"
	"github.com/aristath/riskwatch/internal/di"
	"github.com/aristath/riskwatch/internal/graph"
	"github.com/aristath/riskwatch/internal/modules/market"
	"github.com/aristath/riskwatch/internal/modules/risk"
	"github.com/aristath/riskwatch/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	priceHistoryDays = 365
	riskBackfillDays = 90

	lawsuitsPerCompany     = 3
	executivesPerCompany   = 5
	subsidiariesPerCompany = 2
	actionsPerCompany      = 2
)

type seedCompany struct {
	Ticker    string
	Name      string
	Sector    string
	Industry  string
	MarketCap float64
}

var seedCompanies = []seedCompany{
	{Ticker: "AAPL", Name: "Apple Inc.", Sector: "Technology", Industry: "Consumer Electronics", MarketCap: 3_000_000_000_000},
	{Ticker: "MSFT", Name: "Microsoft Corporation", Sector: "Technology", Industry: "Software", MarketCap: 2_800_000_000_000},
	{Ticker: "GOOGL", Name: "Alphabet Inc.", Sector: "Technology", Industry: "Internet", MarketCap: 1_800_000_000_000},
	{Ticker: "AMZN", Name: "Amazon.com Inc.", Sector: "Consumer Cyclical", Industry: "E-Commerce", MarketCap: 1_500_000_000_000},
	{Ticker: "TSLA", Name: "Tesla Inc.", Sector: "Automotive", Industry: "Electric Vehicles", MarketCap: 800_000_000_000},
}

// lawsuitTemplate describes one lawsuit type. Templates live in a slice,
// not a map, so draws stay reproducible for a fixed seed.
type lawsuitTemplate struct {
	Type           string
	Severity       string
	DurationMonths int
	ImpactMin      float64
	ImpactMax      float64
	Description    string // format string taking the company name
}

var lawsuitTemplates = []lawsuitTemplate{
	{"Securities Fraud", "High", 24, 3.5, 4.8,
		"Shareholders allege that %s made materially false and misleading statements regarding business operations and financial results."},
	{"Antitrust Violation", "High", 36, 4.0, 4.9,
		"Regulatory authorities investigate %s for potential anti-competitive practices and market manipulation."},
	{"Patent Infringement", "Medium", 18, 2.5, 3.8,
		"Patent holder claims %s products infringe on proprietary technology and intellectual property."},
	{"Labor Dispute", "Medium", 12, 2.0, 3.5,
		"Former employees file class action lawsuit against %s regarding workplace conditions and compensation."},
	{"Environmental Violation", "Medium", 20, 2.8, 4.2,
		"%s faces allegations of environmental regulation violations and improper waste disposal."},
	{"Consumer Protection", "Medium", 15, 2.3, 3.6,
		"Consumers allege %s engaged in deceptive marketing practices and false advertising."},
	{"Regulatory Fine", "Low", 6, 1.5, 2.8,
		"Regulatory agency imposes fine on %s for compliance violations."},
	{"Breach of Contract", "Low", 10, 1.8, 3.0,
		"Business partner alleges %s failed to fulfill contractual obligations."},
}

var (
	closedStatuses        = []string{"Settled", "Dismissed", "Closed"}
	executivePositions    = []string{"CEO", "CFO", "COO", "CTO", "Board Member"}
	subsidiarySuffixes    = []string{"Technologies", "International", "Services", "Solutions", "Group"}
	regulatoryAgencies    = []string{"SEC", "FTC", "EPA", "DOJ", "FCC", "FDA"}
	regulatoryActionTypes = []string{"Investigation", "Fine", "Consent Decree", "Warning Letter", "Enforcement Action"}
	regulatoryStatuses    = []string{"Active", "Resolved", "Under Review"}
)

func main() {
	seed := flag.Int64("seed", 1, "Random seed for reproducible demo data")
	dataDir := flag.String("data-dir", "", "Override the data directory (defaults to DATA_DIR)")
	flag.Parse()

	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *dataDir != "" {
		if err := os.MkdirAll(*dataDir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", *dataDir).Msg("Failed to create data directory")
		}
		cfg.DataDir = *dataDir
	}

	log.Info().
		Int64("seed", *seed).
		Str("data_dir", cfg.DataDir).
		Msg("Seeding demo data")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close(context.Background())

	ctx := context.Background()
	rng := rand.New(rand.NewSource(*seed))

	seedMarketData(rng, container, log)
	seedLegalGraph(ctx, rng, container, log)
	backfillRiskTimeline(rng, container, log)
	scoreCompanies(ctx, container, log)

	tables, err := container.Analytics.SyncFromRelational(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to refresh analytical replica")
	} else {
		log.Info().Strs("tables", tables).Msg("Analytical replica refreshed")
	}

	log.Info().Msg("Demo data ready")
}

// seedMarketData loads companies, a year of prices, and sample news
// articles into the core database.
func seedMarketData(rng *rand.Rand, c *di.Container, log zerolog.Logger) {
	for _, sc := range seedCompanies {
		marketCap := sc.MarketCap
		company := market.Company{
			Ticker:    sc.Ticker,
			Name:      sc.Name,
			Sector:    sc.Sector,
			Industry:  sc.Industry,
			MarketCap: &marketCap,
		}
		if err := c.CompanyRepo.Upsert(company); err != nil {
			log.Fatal().Err(err).Str("ticker", sc.Ticker).Msg("Failed to insert company")
		}
	}
	log.Info().Int("count", len(seedCompanies)).Msg("Companies inserted")

	for _, sc := range seedCompanies {
		prices := generatePriceHistory(rng, sc.Ticker)
		if err := c.PriceRepo.InsertBatch(prices); err != nil {
			log.Fatal().Err(err).Str("ticker", sc.Ticker).Msg("Failed to insert price history")
		}
		log.Info().Str("ticker", sc.Ticker).Int("rows", len(prices)).Msg("Price history inserted")
	}

	articles := sampleNews()
	for _, article := range articles {
		if err := c.NewsRepo.Insert(article); err != nil {
			log.Fatal().Err(err).Str("ticker", article.Ticker).Msg("Failed to insert news article")
		}
	}
	log.Info().Int("count", len(articles)).Msg("News articles inserted")
}

// generatePriceHistory walks a year of daily closes from a random base
// price with a ±3% step, deriving open, high, and low around each close.
func generatePriceHistory(rng *rand.Rand, ticker string) []market.StockPrice {
	price := uniform(rng, 100, 300)
	start := time.Now().AddDate(0, 0, -priceHistoryDays)

	prices := make([]market.StockPrice, 0, priceHistoryDays+1)
	for day := 0; day <= priceHistoryDays; day++ {
		price *= 1 + uniform(rng, -0.03, 0.03)
		adjClose := price

		prices = append(prices, market.StockPrice{
			Ticker:   ticker,
			Date:     start.AddDate(0, 0, day).Format("2006-01-02"),
			Open:     price * uniform(rng, 0.99, 1.01),
			High:     price * uniform(rng, 1.00, 1.02),
			Low:      price * uniform(rng, 0.98, 1.00),
			Close:    price,
			Volume:   int64(randBetween(rng, 10_000_000, 100_000_000)),
			AdjClose: &adjClose,
		})
	}
	return prices
}

// sampleNews returns a few articles with pre-scored sentiment so the
// sentiment factor and trend queries have material to work with.
func sampleNews() []market.NewsArticle {
	now := time.Now().UTC()
	score := func(v float64) *float64 { return &v }

	return []market.NewsArticle{
		{
			Ticker:         "AAPL",
			Headline:       "Apple Announces New iPhone with AI Features",
			Summary:        "Latest iPhone includes advanced AI capabilities",
			Source:         "Tech News",
			PublishedDate:  now.AddDate(0, 0, -2).Format(time.RFC3339),
			SentimentScore: score(0.6),
			SentimentLabel: "positive",
		},
		{
			Ticker:         "MSFT",
			Headline:       "Microsoft Azure Revenue Grows 30%",
			Summary:        "Cloud services continue strong growth",
			Source:         "Financial Times",
			PublishedDate:  now.AddDate(0, 0, -5).Format(time.RFC3339),
			SentimentScore: score(0.7),
			SentimentLabel: "positive",
		},
		{
			Ticker:         "TSLA",
			Headline:       "Tesla Faces Production Delays",
			Summary:        "Supply chain issues affect manufacturing",
			Source:         "Reuters",
			PublishedDate:  now.AddDate(0, 0, -1).Format(time.RFC3339),
			SentimentScore: score(-0.4),
			SentimentLabel: "negative",
		},
	}
}

// seedLegalGraph pushes company nodes with lawsuits, executives,
// subsidiaries, and regulatory actions into Neo4j. Skipped entirely when
// no graph is reachable; the litigation factor then uses its fallback.
func seedLegalGraph(ctx context.Context, rng *rand.Rand, c *di.Container, log zerolog.Logger) {
	if c.Graph == nil {
		log.Warn().Msg("Neo4j unreachable, skipping legal graph seed")
		return
	}

	for _, sc := range seedCompanies {
		if err := c.Graph.UpsertCompany(ctx, graph.Company{
			Ticker:   sc.Ticker,
			Name:     sc.Name,
			Sector:   sc.Sector,
			Industry: sc.Industry,
		}); err != nil {
			log.Error().Err(err).Str("ticker", sc.Ticker).Msg("Failed to create company node")
			continue
		}

		created := 0
		for i := 0; i < lawsuitsPerCompany; i++ {
			if err := c.Graph.CreateLawsuit(ctx, sc.Ticker, randomLawsuit(rng, sc.Name, i)); err != nil {
				log.Error().Err(err).Str("ticker", sc.Ticker).Msg("Failed to create lawsuit node")
				continue
			}
			created++
		}

		for i := 0; i < executivesPerCompany; i++ {
			exec := graph.Executive{
				ID:       newID(rng),
				Name:     fmt.Sprintf("Executive %c", 'A'+i),
				Position: executivePositions[i],
			}
			if err := c.Graph.UpsertExecutive(ctx, sc.Ticker, exec); err != nil {
				log.Error().Err(err).Str("ticker", sc.Ticker).Msg("Failed to create executive node")
			}
		}

		for i := 0; i < subsidiariesPerCompany; i++ {
			name := fmt.Sprintf("%s %s %d", sc.Name, subsidiarySuffixes[rng.Intn(len(subsidiarySuffixes))], i+1)
			ownership := float64(randBetween(rng, 51, 100))
			if err := c.Graph.CreateSubsidiary(ctx, sc.Ticker, name, ownership); err != nil {
				log.Error().Err(err).Str("ticker", sc.Ticker).Msg("Failed to create subsidiary node")
			}
		}

		for i := 0; i < actionsPerCompany; i++ {
			if err := c.Graph.CreateRegulatoryAction(ctx, sc.Ticker, randomRegulatoryAction(rng)); err != nil {
				log.Error().Err(err).Str("ticker", sc.Ticker).Msg("Failed to create regulatory action node")
			}
		}

		log.Info().Str("ticker", sc.Ticker).Int("lawsuits", created).Msg("Legal graph seeded")
	}
}

// randomLawsuit draws a template and fills in dates, status, and impact.
// Older filings are more likely to be resolved.
func randomLawsuit(rng *rand.Rand, companyName string, n int) graph.Lawsuit {
	tpl := lawsuitTemplates[rng.Intn(len(lawsuitTemplates))]

	filedDaysAgo := randBetween(rng, 30, 730)
	durationDays := (tpl.DurationMonths + randBetween(rng, -6, 6)) * 30

	status := "Filed"
	switch {
	case filedDaysAgo > durationDays:
		status = closedStatuses[rng.Intn(len(closedStatuses))]
	case filedDaysAgo > durationDays/2:
		status = "In Litigation"
	}

	return graph.Lawsuit{
		ID:          newID(rng),
		Title:       fmt.Sprintf("%s Case #%d", tpl.Type, 1000+n),
		Status:      status,
		LawsuitType: tpl.Type,
		Severity:    tpl.Severity,
		ImpactScore: round2(uniform(rng, tpl.ImpactMin, tpl.ImpactMax)),
		FilingDate:  time.Now().AddDate(0, 0, -filedDaysAgo).Format("2006-01-02"),
		Description: fmt.Sprintf(tpl.Description, companyName),
	}
}

func randomRegulatoryAction(rng *rand.Rand) graph.RegulatoryAction {
	agency := regulatoryAgencies[rng.Intn(len(regulatoryAgencies))]
	actionType := regulatoryActionTypes[rng.Intn(len(regulatoryActionTypes))]

	return graph.RegulatoryAction{
		Agency:      agency,
		ActionType:  actionType,
		Status:      regulatoryStatuses[rng.Intn(len(regulatoryStatuses))],
		Date:        time.Now().AddDate(0, 0, -randBetween(rng, 30, 365)).Format("2006-01-02"),
		Description: fmt.Sprintf("%s %s regarding compliance matters", agency, actionType),
	}
}

// backfillRiskTimeline writes synthetic weekly snapshots so trend and
// timeline queries have history behind the live assessment. The live run
// afterwards owns today's row.
func backfillRiskTimeline(rng *rand.Rand, c *di.Container, log zerolog.Logger) {
	for _, sc := range seedCompanies {
		points := 0
		for daysAgo := riskBackfillDays; daysAgo > 0; daysAgo -= 7 {
			overall := uniform(rng, 2.0, 7.0)
			snapshot := risk.Snapshot{
				Ticker:       sc.Ticker,
				Date:         time.Now().AddDate(0, 0, -daysAgo).Format("2006-01-02"),
				OverallScore: round2(overall),
				Volatility:   round2(overall * uniform(rng, 0.8, 1.2)),
				Litigation:   round2(uniform(rng, 1.0, 5.0)),
				Sentiment:    round2(uniform(rng, 2.0, 6.0)),
				Anomaly:      round2(uniform(rng, 1.0, 4.0)),
				Regulatory:   round2(uniform(rng, 1.0, 3.0)),
				RiskLevel:    risk.Classify(overall),
			}
			if err := c.SnapshotRepo.Upsert(snapshot); err != nil {
				log.Fatal().Err(err).Str("ticker", sc.Ticker).Msg("Failed to insert risk snapshot")
			}
			points++
		}
		log.Info().Str("ticker", sc.Ticker).Int("points", points).Msg("Risk timeline backfilled")
	}
}

// scoreCompanies runs the live engine over every seeded ticker.
func scoreCompanies(ctx context.Context, c *di.Container, log zerolog.Logger) {
	tickers := make([]string, 0, len(seedCompanies))
	for _, sc := range seedCompanies {
		tickers = append(tickers, sc.Ticker)
	}

	results := c.RiskEngine.CalculateBatch(ctx, tickers)
	for _, ticker := range tickers {
		res := results[ticker]
		if res.Error != "" || res.Assessment == nil {
			log.Error().Str("ticker", ticker).Str("error", res.Error).Msg("Risk calculation failed")
			continue
		}
		log.Info().
			Str("ticker", ticker).
			Float64("score", res.Assessment.OverallScore).
			Str("level", res.Assessment.RiskLevel).
			Msg("Risk score calculated")
	}
}

func uniform(rng *rand.Rand, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}

// randBetween returns an int in [min, max].
func randBetween(rng *rand.Rand, min, max int) int {
	return min + rng.Intn(max-min+1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// newID derives a UUID from the seeded source so identifiers are
// reproducible across runs with the same seed.
func newID(rng *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
