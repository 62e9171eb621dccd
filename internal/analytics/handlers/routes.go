package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers analytics module routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/volatility", h.HandleGetVolatility)
		r.Get("/correlation", h.HandleGetCorrelation)
		r.Get("/sectors", h.HandleGetSectors)

		r.Get("/anomalies/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetAnomalies(w, r, chi.URLParam(r, "ticker"))
		})
		r.Get("/indicators/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetIndicators(w, r, chi.URLParam(r, "ticker"))
		})
		r.Get("/sentiment/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetSentimentTrends(w, r, chi.URLParam(r, "ticker"))
		})
		r.Get("/risk-trend/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetRiskTrend(w, r, chi.URLParam(r, "ticker"))
		})
	})
}
