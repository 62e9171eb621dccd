package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk scoring routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/calculate", h.HandleCalculateBatch)

		r.Get("/{ticker}", func(w http.ResponseWriter, req *http.Request) {
			ticker := chi.URLParam(req, "ticker")
			h.HandleGetRisk(w, req, ticker)
		})
		r.Get("/{ticker}/timeline", func(w http.ResponseWriter, req *http.Request) {
			ticker := chi.URLParam(req, "ticker")
			h.HandleGetTimeline(w, req, ticker)
		})
	})
}
