package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterRoutes(t *testing.T) {
	f := newFixture(t, 0)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/risk/AAPL"},
		{http.MethodGet, "/api/risk/AAPL/timeline"},
		{http.MethodPost, "/api/risk/calculate"},
	}

	for _, tt := range tests {
		rec := f.get(tt.path)
		if tt.method == http.MethodPost {
			rec = f.post(tt.path, `{"tickers": ["AAPL"]}`)
		}
		assert.NotEqual(t, http.StatusNotFound, rec.Code, "%s %s must be routed", tt.method, tt.path)
		assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code, "%s %s must be routed", tt.method, tt.path)
	}
}
