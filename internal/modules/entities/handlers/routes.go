package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all entity graph routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/entities", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/{ticker}", func(w http.ResponseWriter, req *http.Request) {
			h.HandleGetEntities(w, req, chi.URLParam(req, "ticker"))
		})
		r.Get("/{ticker}/graph", func(w http.ResponseWriter, req *http.Request) {
			h.HandleGetGraph(w, req, chi.URLParam(req, "ticker"))
		})
		r.Get("/{ticker}/lawsuits", func(w http.ResponseWriter, req *http.Request) {
			h.HandleGetLawsuits(w, req, chi.URLParam(req, "ticker"))
		})
	})
}
