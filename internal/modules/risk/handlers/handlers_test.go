package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/riskwatch/internal/events"
	"github.com/aristath/riskwatch/internal/modules/risk"
)

// testSchema mirrors the core database layout
const testSchema = `
CREATE TABLE companies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker VARCHAR(10) UNIQUE NOT NULL,
	name VARCHAR(255) NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE risk_scores (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker VARCHAR(10) NOT NULL,
	date DATE NOT NULL,
	overall_risk_score REAL NOT NULL,
	volatility_score REAL,
	litigation_score REAL,
	sentiment_score REAL,
	financial_anomaly_score REAL,
	regulatory_score REAL,
	risk_level VARCHAR(20),
	weights TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(ticker, date),
	FOREIGN KEY (ticker) REFERENCES companies(ticker)
);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// stubScorer returns a fixed score and counts invocations so tests can
// tell a stored snapshot from a fresh calculation.
type stubScorer struct {
	name  string
	score float64
	calls int32
}

func (s *stubScorer) Name() string { return s.name }

func (s *stubScorer) Score(_ context.Context, _ string) (risk.FactorScore, error) {
	atomic.AddInt32(&s.calls, 1)
	return risk.FactorScore{Score: s.score}, nil
}

type fixture struct {
	snapshots *risk.SnapshotRepository
	scorers   []*stubScorer
	router    *chi.Mux
}

func newFixture(t *testing.T, maxBatch int) *fixture {
	t.Helper()

	repo := risk.NewSnapshotRepository(setupTestDB(t), zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())

	stubs := []*stubScorer{
		{name: risk.FactorVolatility, score: 5.0},
		{name: risk.FactorLitigation, score: 5.0},
		{name: risk.FactorSentiment, score: 5.0},
		{name: risk.FactorAnomaly, score: 5.0},
		{name: risk.FactorRegulatory, score: 5.0},
	}
	scorers := make([]risk.Scorer, len(stubs))
	for i, s := range stubs {
		scorers[i] = s
	}

	engine := risk.NewEngine(risk.EngineConfig{
		Scorers:   scorers,
		Weights:   risk.DefaultWeights(),
		Snapshots: repo,
		Events:    events.NewManager(bus, zerolog.Nop()),
		Log:       zerolog.Nop(),
	})

	handler := NewHandler(engine, repo, maxBatch, zerolog.Nop())
	router := chi.NewRouter()
	router.Route("/api", func(api chi.Router) {
		handler.RegisterRoutes(api)
	})

	return &fixture{snapshots: repo, scorers: stubs, router: router}
}

func (f *fixture) scorerCalls() int32 {
	var total int32
	for _, s := range f.scorers {
		total += atomic.LoadInt32(&s.calls)
	}
	return total
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f *fixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func seedSnapshot(t *testing.T, repo *risk.SnapshotRepository, ticker, date string, overall float64) {
	t.Helper()
	require.NoError(t, repo.Upsert(risk.Snapshot{
		Ticker:       ticker,
		Date:         date,
		OverallScore: overall,
		Volatility:   6.2,
		Litigation:   3.0,
		Sentiment:    5.5,
		Anomaly:      4.0,
		Regulatory:   2.0,
		RiskLevel:    risk.Classify(overall),
	}))
}

func TestGetRiskCalculatesWhenNoSnapshot(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.get("/api/risk/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "AAPL", body["ticker"])
	assert.InDelta(t, 5.0, body["overall_risk_score"].(float64), 1e-9)
	assert.Equal(t, risk.RiskLevelMedium, body["risk_level"])

	components, ok := body["components"].(map[string]interface{})
	require.True(t, ok, "fresh calculations carry per-factor components")
	assert.Len(t, components, 5)
	assert.Greater(t, f.scorerCalls(), int32(0))

	// The calculation is stored for next time
	got, err := f.snapshots.GetLatest("AAPL")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestGetRiskServesStoredSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	seedSnapshot(t, f.snapshots, "AAPL", "2024-01-05", 4.85)

	rec := f.get("/api/risk/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "AAPL", body["ticker"])
	assert.InDelta(t, 4.85, body["overall_risk_score"].(float64), 1e-9)
	assert.InDelta(t, 6.2, body["volatility_score"].(float64), 1e-9)
	assert.NotContains(t, body, "components")
	assert.Zero(t, f.scorerCalls(), "a stored snapshot must not trigger a calculation")
}

func TestGetRiskRefreshForcesCalculation(t *testing.T) {
	f := newFixture(t, 0)
	seedSnapshot(t, f.snapshots, "AAPL", "2024-01-05", 9.9)

	rec := f.get("/api/risk/AAPL?refresh=true")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Contains(t, body, "components")
	assert.InDelta(t, 5.0, body["overall_risk_score"].(float64), 1e-9)
	assert.Greater(t, f.scorerCalls(), int32(0))
}

func TestGetTimeline(t *testing.T) {
	f := newFixture(t, 0)
	seedSnapshot(t, f.snapshots, "AAPL", "2024-03-01", 4.0)
	seedSnapshot(t, f.snapshots, "AAPL", "2024-03-02", 5.0)
	seedSnapshot(t, f.snapshots, "AAPL", "2024-03-03", 6.0)

	rec := f.get("/api/risk/AAPL/timeline?days=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Ticker   string          `json:"ticker"`
		Timeline []risk.Snapshot `json:"timeline"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "AAPL", body.Ticker)
	require.Len(t, body.Timeline, 2)
	assert.Equal(t, "2024-03-03", body.Timeline[0].Date)
	assert.Equal(t, "2024-03-02", body.Timeline[1].Date)
}

func TestGetTimelineEmptyIsArray(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.get("/api/risk/ZZZZ/timeline")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Ticker   string          `json:"ticker"`
		Timeline []risk.Snapshot `json:"timeline"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "ZZZZ", body.Ticker)
	assert.NotNil(t, body.Timeline, "an empty timeline must serialize as [], not null")
	assert.Empty(t, body.Timeline)
}

func TestCalculateBatch(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.post("/api/risk/calculate", `{"tickers": ["aapl", "MSFT"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results map[string]risk.BatchResult `json:"results"`
		Count   int                         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Results, 2)

	// Results are keyed by the ticker as submitted
	require.NotNil(t, body.Results["aapl"].Assessment)
	assert.Equal(t, "AAPL", body.Results["aapl"].Assessment.Ticker)
	require.NotNil(t, body.Results["MSFT"].Assessment)

	count, err := f.snapshots.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCalculateBatchRejectsInvalidBody(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.post("/api/risk/calculate", `{nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestCalculateBatchRejectsEmpty(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.post("/api/risk/calculate", `{"tickers": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No tickers provided")
}

func TestCalculateBatchRejectsOversized(t *testing.T) {
	f := newFixture(t, 2)

	rec := f.post("/api/risk/calculate", `{"tickers": ["AAPL", "MSFT", "TSLA"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many tickers, maximum is 2")
}
