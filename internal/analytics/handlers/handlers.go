// Package handlers provides HTTP handlers for analytical queries.
//
// Heavy aggregates (volatility, correlation, sector performance) are
// cached in the client data store; a stale copy is served when the
// analytical replica is unreachable.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/analytics"
	"github.com/aristath/riskwatch/internal/clientdata"
	"github.com/aristath/riskwatch/internal/modules/market"
	"github.com/aristath/riskwatch/pkg/formulas"
)

const (
	defaultVolatilityDays  = 30
	defaultCorrelationDays = 90
	defaultSectorDays      = 30
	defaultTrendDays       = 30
	defaultAnomalyZ        = 2.0

	rsiPeriod      = 14
	smaShortPeriod = 20
	smaLongPeriod  = 50
	// indicatorHistoryRows covers the longest lookback with headroom
	indicatorHistoryRows = 200
)

// AnalyticsSource is the slice of the analytical replica the routes consume.
type AnalyticsSource interface {
	TickerVolatility(ctx context.Context, ticker string, days int) (*analytics.VolatilityMetrics, error)
	AllVolatility(ctx context.Context, days int) ([]analytics.VolatilityMetrics, error)
	DetectAnomalies(ctx context.Context, ticker string, threshold float64) ([]analytics.AnomalyPoint, error)
	SectorPerformanceSince(ctx context.Context, days int) ([]analytics.SectorPerformance, error)
	SentimentTrends(ctx context.Context, ticker string, days int) ([]analytics.SentimentTrend, error)
	RiskTrend(ctx context.Context, ticker string, days int) ([]analytics.RiskTrendBucket, error)
	Correlations(ctx context.Context, tickers []string, days int) (*analytics.CorrelationMatrix, error)
}

// PriceSource provides stored price history for indicator calculations.
type PriceSource interface {
	History(ticker string, limit int) ([]market.StockPrice, error)
}

// Handler handles analytics HTTP requests
type Handler struct {
	store  AnalyticsSource
	prices PriceSource
	cache  *clientdata.Repository
	log    zerolog.Logger
}

// NewHandler creates a new analytics handler. cache may be nil to
// disable response caching.
func NewHandler(store AnalyticsSource, prices PriceSource, cache *clientdata.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		prices: prices,
		cache:  cache,
		log:    log.With().Str("handler", "analytics").Logger(),
	}
}

// HandleGetVolatility handles GET /api/analytics/volatility?ticker=&days=.
// Without a ticker it returns metrics for every tracked ticker, most
// volatile first.
func (h *Handler) HandleGetVolatility(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	days := queryInt(r, "days", defaultVolatilityDays)
	refresh := r.URL.Query().Get("refresh") == "true"

	if ticker != "" {
		key := fmt.Sprintf("%s:%d", ticker, days)

		if !refresh {
			var cached analytics.VolatilityMetrics
			if h.cacheFresh(clientdata.TableVolatility, key, &cached) {
				h.writeJSON(w, http.StatusOK, &cached)
				return
			}
		}

		metrics, err := h.store.TickerVolatility(r.Context(), ticker, days)
		if err != nil {
			var stale analytics.VolatilityMetrics
			if h.cacheStale(clientdata.TableVolatility, key, &stale) {
				h.log.Warn().Err(err).Str("ticker", ticker).Msg("Volatility query failed, serving stale cache")
				h.writeJSON(w, http.StatusOK, &stale)
				return
			}
			h.log.Error().Err(err).Str("ticker", ticker).Msg("Volatility query failed")
			http.Error(w, "Failed to compute volatility", http.StatusInternalServerError)
			return
		}
		if metrics == nil {
			http.Error(w, fmt.Sprintf("No price history for ticker: %s", ticker), http.StatusNotFound)
			return
		}

		h.cacheSave(clientdata.TableVolatility, key, metrics, clientdata.TTLVolatility)
		h.writeJSON(w, http.StatusOK, metrics)
		return
	}

	key := fmt.Sprintf("all:%d", days)

	if !refresh {
		var cached []analytics.VolatilityMetrics
		if h.cacheFresh(clientdata.TableVolatility, key, &cached) {
			h.writeJSON(w, http.StatusOK, volatilityListResponse(days, cached))
			return
		}
	}

	metrics, err := h.store.AllVolatility(r.Context(), days)
	if err != nil {
		var stale []analytics.VolatilityMetrics
		if h.cacheStale(clientdata.TableVolatility, key, &stale) {
			h.log.Warn().Err(err).Msg("Volatility query failed, serving stale cache")
			h.writeJSON(w, http.StatusOK, volatilityListResponse(days, stale))
			return
		}
		h.log.Error().Err(err).Msg("Volatility query failed")
		http.Error(w, "Failed to compute volatility", http.StatusInternalServerError)
		return
	}

	h.cacheSave(clientdata.TableVolatility, key, metrics, clientdata.TTLVolatility)
	h.writeJSON(w, http.StatusOK, volatilityListResponse(days, metrics))
}

// HandleGetAnomalies handles GET /api/analytics/anomalies/{ticker}?threshold=.
func (h *Handler) HandleGetAnomalies(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	threshold := queryFloat(r, "threshold", defaultAnomalyZ)

	points, err := h.store.DetectAnomalies(r.Context(), ticker, threshold)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Anomaly query failed")
		http.Error(w, "Failed to detect anomalies", http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []analytics.AnomalyPoint{}
	}

	anomalyCount := 0
	for _, p := range points {
		if p.IsAnomaly {
			anomalyCount++
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":        ticker,
		"threshold":     threshold,
		"points":        points,
		"anomaly_count": anomalyCount,
	})
}

// HandleGetCorrelation handles GET /api/analytics/correlation?tickers=A,B&days=.
func (h *Handler) HandleGetCorrelation(w http.ResponseWriter, r *http.Request) {
	tickers := splitTickers(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		http.Error(w, "At least one ticker is required", http.StatusBadRequest)
		return
	}
	days := queryInt(r, "days", defaultCorrelationDays)
	refresh := r.URL.Query().Get("refresh") == "true"

	key := fmt.Sprintf("%s:%d", strings.Join(tickers, ","), days)

	if !refresh {
		var cached analytics.CorrelationMatrix
		if h.cacheFresh(clientdata.TableCorrelation, key, &cached) {
			h.writeJSON(w, http.StatusOK, &cached)
			return
		}
	}

	matrix, err := h.store.Correlations(r.Context(), tickers, days)
	if err != nil {
		var stale analytics.CorrelationMatrix
		if h.cacheStale(clientdata.TableCorrelation, key, &stale) {
			h.log.Warn().Err(err).Strs("tickers", tickers).Msg("Correlation query failed, serving stale cache")
			h.writeJSON(w, http.StatusOK, &stale)
			return
		}
		h.log.Error().Err(err).Strs("tickers", tickers).Msg("Correlation query failed")
		http.Error(w, "Failed to compute correlations", http.StatusInternalServerError)
		return
	}

	h.cacheSave(clientdata.TableCorrelation, key, matrix, clientdata.TTLCorrelation)
	h.writeJSON(w, http.StatusOK, matrix)
}

// HandleGetSectors handles GET /api/analytics/sectors?days=.
func (h *Handler) HandleGetSectors(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultSectorDays)
	refresh := r.URL.Query().Get("refresh") == "true"

	key := strconv.Itoa(days)

	if !refresh {
		var cached []analytics.SectorPerformance
		if h.cacheFresh(clientdata.TableSectors, key, &cached) {
			h.writeJSON(w, http.StatusOK, sectorResponse(days, cached))
			return
		}
	}

	sectors, err := h.store.SectorPerformanceSince(r.Context(), days)
	if err != nil {
		var stale []analytics.SectorPerformance
		if h.cacheStale(clientdata.TableSectors, key, &stale) {
			h.log.Warn().Err(err).Msg("Sector query failed, serving stale cache")
			h.writeJSON(w, http.StatusOK, sectorResponse(days, stale))
			return
		}
		h.log.Error().Err(err).Msg("Sector query failed")
		http.Error(w, "Failed to compute sector performance", http.StatusInternalServerError)
		return
	}

	h.cacheSave(clientdata.TableSectors, key, sectors, clientdata.TTLSectors)
	h.writeJSON(w, http.StatusOK, sectorResponse(days, sectors))
}

// HandleGetIndicators handles GET /api/analytics/indicators/{ticker},
// serving RSI and moving averages from stored closes. Indicators with
// insufficient history come back null rather than erroring.
func (h *Handler) HandleGetIndicators(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	prices, err := h.prices.History(ticker, indicatorHistoryRows)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Price history query failed")
		http.Error(w, "Failed to load price history", http.StatusInternalServerError)
		return
	}
	if len(prices) == 0 {
		http.Error(w, fmt.Sprintf("No price history for ticker: %s", ticker), http.StatusNotFound)
		return
	}

	// History is most recent first; indicators need ascending closes
	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[len(prices)-1-i] = p.Close
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":      ticker,
		"date":        prices[0].Date,
		"close":       prices[0].Close,
		"rsi_14":      formulas.CalculateRSI(closes, rsiPeriod),
		"sma_20":      formulas.CalculateSMA(closes, smaShortPeriod),
		"sma_50":      formulas.CalculateSMA(closes, smaLongPeriod),
		"data_points": len(closes),
	})
}

// HandleGetSentimentTrends handles GET /api/analytics/sentiment/{ticker}?days=.
func (h *Handler) HandleGetSentimentTrends(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	days := queryInt(r, "days", defaultTrendDays)

	trends, err := h.store.SentimentTrends(r.Context(), ticker, days)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Sentiment trend query failed")
		http.Error(w, "Failed to compute sentiment trends", http.StatusInternalServerError)
		return
	}
	if trends == nil {
		trends = []analytics.SentimentTrend{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"days":   days,
		"trends": trends,
	})
}

// HandleGetRiskTrend handles GET /api/analytics/risk-trend/{ticker}?days=.
func (h *Handler) HandleGetRiskTrend(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	days := queryInt(r, "days", defaultCorrelationDays)

	buckets, err := h.store.RiskTrend(r.Context(), ticker, days)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Risk trend query failed")
		http.Error(w, "Failed to compute risk trend", http.StatusInternalServerError)
		return
	}
	if buckets == nil {
		buckets = []analytics.RiskTrendBucket{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"days":   days,
		"weeks":  buckets,
	})
}

func volatilityListResponse(days int, metrics []analytics.VolatilityMetrics) map[string]interface{} {
	if metrics == nil {
		metrics = []analytics.VolatilityMetrics{}
	}
	return map[string]interface{}{
		"days":    days,
		"metrics": metrics,
	}
}

func sectorResponse(days int, sectors []analytics.SectorPerformance) map[string]interface{} {
	if sectors == nil {
		sectors = []analytics.SectorPerformance{}
	}
	return map[string]interface{}{
		"days":    days,
		"sectors": sectors,
	}
}

// splitTickers parses a comma-separated ticker list, dropping blanks
func splitTickers(raw string) []string {
	parts := strings.Split(raw, ",")
	tickers := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
			tickers = append(tickers, t)
		}
	}
	return tickers
}

func (h *Handler) cacheFresh(table, key string, out interface{}) bool {
	if h.cache == nil {
		return false
	}
	found, err := h.cache.GetIfFresh(table, key, out)
	return err == nil && found
}

func (h *Handler) cacheStale(table, key string, out interface{}) bool {
	if h.cache == nil {
		return false
	}
	found, err := h.cache.Get(table, key, out)
	return err == nil && found
}

func (h *Handler) cacheSave(table, key string, data interface{}, ttl time.Duration) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Store(table, key, data, ttl); err != nil {
		h.log.Warn().Err(err).Str("table", table).Str("key", key).Msg("Failed to cache payload")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// queryInt reads a positive integer query parameter, falling back to
// the default on absence or garbage.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// queryFloat reads a positive float query parameter, falling back to
// the default on absence or garbage.
func queryFloat(r *http.Request, key string, def float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}
