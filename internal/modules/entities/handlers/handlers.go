// Package handlers provides HTTP handlers for the legal entity graph.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/clientdata"
	"github.com/aristath/riskwatch/internal/graph"
)

// GraphSource is the slice of the graph store the entity routes consume.
type GraphSource interface {
	CompanyGraph(ctx context.Context, ticker string) (*graph.CompanyGraph, error)
	CompanyEntities(ctx context.Context, ticker string) (*graph.CompanyEntities, error)
	LawsuitSummary(ctx context.Context, ticker string) (*graph.LawsuitSummary, error)
	Ping(ctx context.Context) error
}

// Handler handles entity graph HTTP requests. The graph backend is
// optional: with a nil source the graph and entity routes serve 503 and
// the lawsuit route degrades to an empty payload.
type Handler struct {
	source GraphSource
	cache  *clientdata.Repository
	log    zerolog.Logger
}

// NewHandler creates a new entities handler. source may be nil when the
// graph store is unreachable; cache may be nil to disable caching.
func NewHandler(source GraphSource, cache *clientdata.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		source: source,
		cache:  cache,
		log:    log.With().Str("handler", "entities").Logger(),
	}
}

// HandleGetGraph handles GET /api/entities/{ticker}/graph. Graph
// payloads are cached; a stale copy is served when the graph store
// is unreachable.
func (h *Handler) HandleGetGraph(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	if h.cache != nil {
		var cached graph.CompanyGraph
		if found, err := h.cache.GetIfFresh(clientdata.TableEntityGraph, ticker, &cached); err == nil && found {
			h.writeJSON(w, http.StatusOK, graphResponse(ticker, &cached))
			return
		}
	}

	if h.source == nil {
		http.Error(w, "Graph service unavailable", http.StatusServiceUnavailable)
		return
	}

	g, err := h.source.CompanyGraph(r.Context(), ticker)
	if err != nil {
		// Stale beats nothing while the graph is down
		if h.cache != nil {
			var stale graph.CompanyGraph
			if found, cacheErr := h.cache.Get(clientdata.TableEntityGraph, ticker, &stale); cacheErr == nil && found {
				h.log.Warn().Err(err).Str("ticker", ticker).Msg("Graph query failed, serving stale cache")
				h.writeJSON(w, http.StatusOK, graphResponse(ticker, &stale))
				return
			}
		}
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Graph query failed")
		http.Error(w, "Graph service unavailable", http.StatusServiceUnavailable)
		return
	}

	if g == nil || len(g.Nodes) == 0 {
		http.Error(w, fmt.Sprintf("No graph data found for ticker: %s", ticker), http.StatusNotFound)
		return
	}

	if h.cache != nil {
		if err := h.cache.Store(clientdata.TableEntityGraph, ticker, g, clientdata.TTLEntityGraph); err != nil {
			h.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache entity graph")
		}
	}

	h.writeJSON(w, http.StatusOK, graphResponse(ticker, g))
}

// HandleGetEntities handles GET /api/entities/{ticker}, listing related
// entities without the graph structure.
func (h *Handler) HandleGetEntities(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	if h.source == nil {
		http.Error(w, "Graph service unavailable", http.StatusServiceUnavailable)
		return
	}

	entities, err := h.source.CompanyEntities(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Entity query failed")
		http.Error(w, "Failed to load company entities", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":   ticker,
		"entities": entities,
		"summary": map[string]int{
			"subsidiaries_count":       len(entities.Subsidiaries),
			"executives_count":         len(entities.Executives),
			"lawsuits_count":           len(entities.Lawsuits),
			"regulatory_actions_count": len(entities.RegulatoryActions),
		},
	})
}

// HandleGetLawsuits handles GET /api/entities/{ticker}/lawsuits. The
// route never errors: an unreachable graph yields available=false with
// a zeroed payload so risk dashboards keep rendering.
func (h *Handler) HandleGetLawsuits(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	if h.source == nil {
		h.writeJSON(w, http.StatusOK, lawsuitsUnavailable(ticker, "Graph service unavailable"))
		return
	}

	summary, err := h.source.LawsuitSummary(r.Context(), ticker)
	if err != nil {
		h.log.Warn().Err(err).Str("ticker", ticker).Msg("Lawsuit query failed")
		h.writeJSON(w, http.StatusOK, lawsuitsUnavailable(ticker, "Graph query failed"))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":    ticker,
		"available": true,
		"data":      summary,
	})
}

// HandleHealth handles GET /api/entities/health, reporting graph
// connectivity without failing the request.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "degraded",
			"neo4j":   "disconnected",
			"message": "Graph features unavailable",
		})
		return
	}

	if err := h.source.Ping(r.Context()); err != nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "unhealthy",
			"neo4j":  "error",
			"error":  err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"neo4j":    "connected",
		"features": []string{"entity_graph", "lawsuit_tracking", "executive_mapping"},
	})
}

func graphResponse(ticker string, g *graph.CompanyGraph) map[string]interface{} {
	return map[string]interface{}{
		"ticker": ticker,
		"graph":  g,
		"legend": graph.Legend(),
	}
}

func lawsuitsUnavailable(ticker, message string) map[string]interface{} {
	return map[string]interface{}{
		"ticker":    ticker,
		"available": false,
		"message":   message,
		"data":      &graph.LawsuitSummary{},
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
