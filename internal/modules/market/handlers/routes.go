package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/market", func(r chi.Router) {
		r.Get("/companies", h.HandleListCompanies)
		r.Post("/companies", h.HandleAddCompany)
		r.Get("/companies/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetCompany(w, r, chi.URLParam(r, "ticker"))
		})

		r.Route("/stocks/{ticker}", func(r chi.Router) {
			r.Get("/prices", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetPrices(w, r, chi.URLParam(r, "ticker"))
			})
			r.Post("/prices", func(w http.ResponseWriter, r *http.Request) {
				h.HandleIngestPrices(w, r, chi.URLParam(r, "ticker"))
			})
			r.Get("/latest", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetLatest(w, r, chi.URLParam(r, "ticker"))
			})
			r.Get("/news", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetNews(w, r, chi.URLParam(r, "ticker"))
			})
			r.Post("/news", func(w http.ResponseWriter, r *http.Request) {
				h.HandleIngestNews(w, r, chi.URLParam(r, "ticker"))
			})
			r.Get("/sentiment", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetSentiment(w, r, chi.URLParam(r, "ticker"))
			})
		})
	})
}
