// Package handlers provides HTTP handlers for company, price, and news data.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/events"
	"github.com/aristath/riskwatch/internal/modules/market"
)

// Handler handles market data HTTP requests
type Handler struct {
	companyRepo  *market.CompanyRepository
	priceRepo    *market.PriceRepository
	newsRepo     *market.NewsRepository
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(
	companyRepo *market.CompanyRepository,
	priceRepo *market.PriceRepository,
	newsRepo *market.NewsRepository,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		companyRepo:  companyRepo,
		priceRepo:    priceRepo,
		newsRepo:     newsRepo,
		eventManager: eventManager,
		log:          log.With().Str("handler", "market").Logger(),
	}
}

// HandleListCompanies handles GET /api/market/companies
func (h *Handler) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.companyRepo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list companies")
		http.Error(w, "Failed to list companies", http.StatusInternalServerError)
		return
	}

	if companies == nil {
		companies = []market.Company{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"companies": companies,
		"count":     len(companies),
	})
}

// HandleGetCompany handles GET /api/market/companies/{ticker}
func (h *Handler) HandleGetCompany(w http.ResponseWriter, r *http.Request, ticker string) {
	company, err := h.companyRepo.GetByTicker(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get company")
		http.Error(w, "Failed to get company", http.StatusInternalServerError)
		return
	}

	if company == nil {
		http.Error(w, "Company not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, company)
}

// HandleAddCompany handles POST /api/market/companies
func (h *Handler) HandleAddCompany(w http.ResponseWriter, r *http.Request) {
	var company market.Company
	if err := json.NewDecoder(r.Body).Decode(&company); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if company.Ticker == "" {
		http.Error(w, "Ticker is required", http.StatusBadRequest)
		return
	}
	if company.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	if err := h.companyRepo.Upsert(company); err != nil {
		h.log.Error().Err(err).Str("ticker", company.Ticker).Msg("Failed to add company")
		http.Error(w, "Failed to add company", http.StatusInternalServerError)
		return
	}

	h.eventManager.EmitTyped(events.CompanyAdded, "market", &events.CompanyAddedData{
		Ticker: company.Ticker,
		Name:   company.Name,
		Sector: company.Sector,
	})

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Company added",
		"ticker":  company.Ticker,
	})
}

// HandleGetPrices handles GET /api/market/stocks/{ticker}/prices
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request, ticker string) {
	limit := queryInt(r, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	prices, err := h.priceRepo.HistoryRange(ticker, startDate, endDate, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get prices")
		http.Error(w, "Failed to get prices", http.StatusInternalServerError)
		return
	}

	if prices == nil {
		prices = []market.StockPrice{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"prices": prices,
		"count":  len(prices),
	})
}

// HandleIngestPrices handles POST /api/market/stocks/{ticker}/prices
func (h *Handler) HandleIngestPrices(w http.ResponseWriter, r *http.Request, ticker string) {
	var payload struct {
		Prices []market.StockPrice `json:"prices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(payload.Prices) == 0 {
		http.Error(w, "No prices provided", http.StatusBadRequest)
		return
	}

	// Rows belong to the ticker in the path
	for i := range payload.Prices {
		payload.Prices[i].Ticker = ticker
	}

	if err := h.priceRepo.InsertBatch(payload.Prices); err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to ingest prices")
		http.Error(w, "Failed to ingest prices", http.StatusInternalServerError)
		return
	}

	h.eventManager.EmitTyped(events.PriceUpdated, "market", &events.PriceUpdatedData{
		Ticker: ticker,
		Rows:   len(payload.Prices),
	})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Prices ingested",
		"ticker":  ticker,
		"rows":    len(payload.Prices),
	})
}

// HandleGetLatest handles GET /api/market/stocks/{ticker}/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request, ticker string) {
	quote, err := h.priceRepo.Latest(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get latest price")
		http.Error(w, "Failed to get latest price", http.StatusInternalServerError)
		return
	}

	if quote == nil {
		http.Error(w, "Price data not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

// HandleGetNews handles GET /api/market/stocks/{ticker}/news
func (h *Handler) HandleGetNews(w http.ResponseWriter, r *http.Request, ticker string) {
	limit := queryInt(r, "limit", 20)
	if limit > 200 {
		limit = 200
	}

	articles, err := h.newsRepo.Recent(ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get news")
		http.Error(w, "Failed to get news", http.StatusInternalServerError)
		return
	}

	if articles == nil {
		articles = []market.NewsArticle{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":   ticker,
		"articles": articles,
		"count":    len(articles),
	})
}

// HandleIngestNews handles POST /api/market/stocks/{ticker}/news
func (h *Handler) HandleIngestNews(w http.ResponseWriter, r *http.Request, ticker string) {
	var payload struct {
		Articles []market.NewsArticle `json:"articles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(payload.Articles) == 0 {
		http.Error(w, "No articles provided", http.StatusBadRequest)
		return
	}

	inserted := 0
	for _, article := range payload.Articles {
		article.Ticker = ticker
		if err := h.newsRepo.Insert(article); err != nil {
			h.log.Warn().Err(err).Str("ticker", ticker).Msg("Skipping unstorable article")
			continue
		}
		inserted++
	}

	h.eventManager.EmitTyped(events.NewsUpdated, "market", &events.NewsUpdatedData{
		Ticker:   ticker,
		Articles: inserted,
	})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Articles ingested",
		"ticker":   ticker,
		"articles": inserted,
	})
}

// HandleGetSentiment handles GET /api/market/stocks/{ticker}/sentiment
func (h *Handler) HandleGetSentiment(w http.ResponseWriter, r *http.Request, ticker string) {
	limit := queryInt(r, "limit", 50)

	summary, err := h.newsRepo.SentimentSummary(ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get sentiment summary")
		http.Error(w, "Failed to get sentiment summary", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// queryInt reads an integer query parameter with a default
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
