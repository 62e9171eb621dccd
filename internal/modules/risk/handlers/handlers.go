// Package handlers provides HTTP handlers for risk scoring operations.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/modules/risk"
)

// Handler handles risk scoring HTTP requests
type Handler struct {
	engine    *risk.Engine
	snapshots *risk.SnapshotRepository
	maxBatch  int
	log       zerolog.Logger
}

// NewHandler creates a new risk handler. maxBatch bounds how many
// tickers a single batch request may carry; zero falls back to 50.
func NewHandler(engine *risk.Engine, snapshots *risk.SnapshotRepository, maxBatch int, log zerolog.Logger) *Handler {
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &Handler{
		engine:    engine,
		snapshots: snapshots,
		maxBatch:  maxBatch,
		log:       log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetRisk handles GET /api/risk/{ticker}. It serves the latest
// stored snapshot, calculating on demand when none exists;
// ?refresh=true forces a fresh calculation.
func (h *Handler) HandleGetRisk(w http.ResponseWriter, r *http.Request, ticker string) {
	refresh := r.URL.Query().Get("refresh") == "true"

	if !refresh {
		snapshot, err := h.snapshots.GetLatest(ticker)
		if err != nil {
			h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to load risk snapshot")
			http.Error(w, "Failed to load risk snapshot", http.StatusInternalServerError)
			return
		}
		if snapshot != nil {
			h.writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}

	assessment, err := h.engine.Calculate(r.Context(), ticker)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, assessment)
}

// HandleGetTimeline handles GET /api/risk/{ticker}/timeline. Snapshots
// come back most recent first, bounded by the days query parameter.
func (h *Handler) HandleGetTimeline(w http.ResponseWriter, r *http.Request, ticker string) {
	days := queryInt(r, "days", 90)

	timeline, err := h.snapshots.Timeline(ticker, days)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to load risk timeline")
		http.Error(w, "Failed to load risk timeline", http.StatusInternalServerError)
		return
	}
	if timeline == nil {
		timeline = []risk.Snapshot{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":   strings.ToUpper(strings.TrimSpace(ticker)),
		"timeline": timeline,
	})
}

// HandleCalculateBatch handles POST /api/risk/calculate, scoring a list
// of tickers synchronously.
func (h *Handler) HandleCalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tickers []string `json:"tickers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Tickers) == 0 {
		http.Error(w, "No tickers provided", http.StatusBadRequest)
		return
	}
	if len(req.Tickers) > h.maxBatch {
		http.Error(w, fmt.Sprintf("Too many tickers, maximum is %d", h.maxBatch), http.StatusBadRequest)
		return
	}

	results := h.engine.CalculateBatch(r.Context(), req.Tickers)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
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
