package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/riskwatch/internal/events"
	"github.com/aristath/riskwatch/internal/modules/market"
)

const testSchema = `
CREATE TABLE companies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker VARCHAR(10) UNIQUE NOT NULL,
	name VARCHAR(255) NOT NULL,
	sector VARCHAR(100),
	industry VARCHAR(100),
	market_cap REAL,
	description TEXT,
	website VARCHAR(255),
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE stock_prices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker VARCHAR(10) NOT NULL,
	date DATE NOT NULL,
	open REAL, high REAL, low REAL, close REAL,
	volume BIGINT,
	adj_close REAL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(ticker, date)
);
CREATE TABLE news_articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker VARCHAR(10) NOT NULL,
	headline TEXT NOT NULL,
	summary TEXT, content TEXT, source VARCHAR(100), author VARCHAR(255),
	published_date TIMESTAMP NOT NULL,
	url TEXT UNIQUE,
	sentiment_score REAL,
	sentiment_label VARCHAR(20),
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

func setupHandler(t *testing.T) (*Handler, *sql.DB, *events.Bus) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	log := zerolog.Nop()
	bus := events.NewBus(log)
	manager := events.NewManager(bus, log)

	handler := NewHandler(
		market.NewCompanyRepository(db, log),
		market.NewPriceRepository(db, log),
		market.NewNewsRepository(db, log),
		manager,
		log,
	)
	return handler, db, bus
}

func newRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r
}

func TestHandleListCompaniesEmpty(t *testing.T) {
	handler, _, _ := setupHandler(t)
	router := newRouter(handler)

	req := httptest.NewRequest("GET", "/api/market/companies", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, float64(0), response["count"])
	assert.Empty(t, response["companies"])
}

func TestHandleAddCompanyEmitsEvent(t *testing.T) {
	handler, _, bus := setupHandler(t)
	router := newRouter(handler)

	received := make(chan *events.Event, 1)
	_ = bus.Subscribe(events.CompanyAdded, func(e *events.Event) {
		received <- e
	})

	body := `{"ticker": "AAPL", "name": "Apple Inc.", "sector": "Technology"}`
	req := httptest.NewRequest("POST", "/api/market/companies", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	select {
	case e := <-received:
		assert.Equal(t, events.CompanyAdded, e.Type)
		assert.Equal(t, "AAPL", e.Data["ticker"])
	default:
		t.Fatal("expected CompanyAdded event")
	}
}

func TestHandleAddCompanyValidation(t *testing.T) {
	handler, _, _ := setupHandler(t)
	router := newRouter(handler)

	tests := []struct {
		name string
		body string
	}{
		{"missing ticker", `{"name": "No Ticker"}`},
		{"missing name", `{"ticker": "XX"}`},
		{"invalid json", `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/market/companies", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleGetCompanyNotFound(t *testing.T) {
	handler, _, _ := setupHandler(t)
	router := newRouter(handler)

	req := httptest.NewRequest("GET", "/api/market/companies/NOPE", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetCompany(t *testing.T) {
	handler, db, _ := setupHandler(t)
	router := newRouter(handler)

	_, err := db.Exec(`INSERT INTO companies (ticker, name, sector) VALUES ('AAPL', 'Apple Inc.', 'Technology')`)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/market/companies/AAPL", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var company market.Company
	require.NoError(t, json.NewDecoder(w.Body).Decode(&company))
	assert.Equal(t, "AAPL", company.Ticker)
	assert.Equal(t, "Apple Inc.", company.Name)
}

func TestHandleIngestAndGetLatest(t *testing.T) {
	handler, _, bus := setupHandler(t)
	router := newRouter(handler)

	received := make(chan *events.Event, 1)
	_ = bus.Subscribe(events.PriceUpdated, func(e *events.Event) {
		received <- e
	})

	body := `{"prices": [
		{"date": "2024-01-02", "open": 100, "high": 101, "low": 98, "close": 100, "volume": 1000},
		{"date": "2024-01-03", "open": 100, "high": 106, "low": 102, "close": 105, "volume": 1500}
	]}`
	req := httptest.NewRequest("POST", "/api/market/stocks/AAPL/prices", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	select {
	case e := <-received:
		assert.Equal(t, float64(2), e.Data["rows"])
	default:
		t.Fatal("expected PriceUpdated event")
	}

	req = httptest.NewRequest("GET", "/api/market/stocks/AAPL/latest", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var quote market.Quote
	require.NoError(t, json.NewDecoder(w.Body).Decode(&quote))
	assert.Equal(t, 105.0, quote.Price)
	assert.InDelta(t, 5.0, quote.Change, 0.0001)
	assert.InDelta(t, 5.0, quote.ChangePercent, 0.0001)
}

func TestHandleGetLatestNotFound(t *testing.T) {
	handler, _, _ := setupHandler(t)
	router := newRouter(handler)

	req := httptest.NewRequest("GET", "/api/market/stocks/NOPE/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetPricesLimit(t *testing.T) {
	handler, db, _ := setupHandler(t)
	router := newRouter(handler)

	for _, date := range []string{"2024-01-02", "2024-01-03", "2024-01-04"} {
		_, err := db.Exec(`INSERT INTO stock_prices (ticker, date, close, volume) VALUES ('AAPL', ?, 100, 1000)`, date)
		require.NoError(t, err)
	}

	req := httptest.NewRequest("GET", "/api/market/stocks/AAPL/prices?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, float64(2), response["count"])
}

func TestHandleIngestNewsAndSentiment(t *testing.T) {
	handler, _, bus := setupHandler(t)
	router := newRouter(handler)

	received := make(chan *events.Event, 1)
	_ = bus.Subscribe(events.NewsUpdated, func(e *events.Event) {
		received <- e
	})

	body := `{"articles": [
		{"headline": "Good news", "published_date": "2024-01-02 09:00:00", "url": "https://news/1", "sentiment_score": 0.8, "sentiment_label": "positive"},
		{"headline": "Bad news", "published_date": "2024-01-03 09:00:00", "url": "https://news/2", "sentiment_score": -0.2, "sentiment_label": "negative"}
	]}`
	req := httptest.NewRequest("POST", "/api/market/stocks/AAPL/news", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	select {
	case e := <-received:
		assert.Equal(t, float64(2), e.Data["articles"])
	default:
		t.Fatal("expected NewsUpdated event")
	}

	req = httptest.NewRequest("GET", "/api/market/stocks/AAPL/sentiment", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var summary market.SentimentSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, 2, summary.ArticleCount)
	assert.Equal(t, 1, summary.PositiveCount)
	assert.Equal(t, 1, summary.NegativeCount)
	require.NotNil(t, summary.AverageScore)
	assert.InDelta(t, 0.3, *summary.AverageScore, 0.0001)
	assert.Equal(t, "positive", summary.Trend)
}

func TestHandleGetNewsEmpty(t *testing.T) {
	handler, _, _ := setupHandler(t)
	router := newRouter(handler)

	req := httptest.NewRequest("GET", "/api/market/stocks/AAPL/news", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, float64(0), response["count"])
}
