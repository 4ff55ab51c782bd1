package proxy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/laurikarhu/hlsproxy/internal/middleware"
)

// CatalogSource discovers titles, search results, and the home listing from
// the origin site. In production this is backed by the same goquery-based
// scraping idiom as scraper.HTMLSource; it is a separate, narrower interface
// here because these endpoints return catalog metadata rather than
// playable-source descriptors.
type CatalogSource interface {
	Home(ctx context.Context) (json.RawMessage, error)
	Search(ctx context.Context, query string) (json.RawMessage, error)
	AnimeInfo(ctx context.Context, id string) (json.RawMessage, error)
}

// CatalogHandler serves the read-only catalog endpoints (spec §6):
// /anime/{id}, /search, /home.
type CatalogHandler struct {
	allowedOrigins []string
	source         CatalogSource
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(allowedOrigins []string, source CatalogSource) *CatalogHandler {
	return &CatalogHandler{allowedOrigins: allowedOrigins, source: source}
}

// ServeHome handles GET /home.
func (h *CatalogHandler) ServeHome(w http.ResponseWriter, r *http.Request) {
	middleware.ApplyCORSHeaders(w, r, h.allowedOrigins)
	data, err := h.source.Home(r.Context())
	if err != nil {
		writeError(w, newError(BadGateway, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// ServeSearch handles GET /search.
func (h *CatalogHandler) ServeSearch(w http.ResponseWriter, r *http.Request) {
	middleware.ApplyCORSHeaders(w, r, h.allowedOrigins)
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, newError(BadRequest, "missing q parameter"))
		return
	}
	data, err := h.source.Search(r.Context(), q)
	if err != nil {
		writeError(w, newError(BadGateway, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// ServeAnime handles GET /anime/{id}.
func (h *CatalogHandler) ServeAnime(w http.ResponseWriter, r *http.Request) {
	middleware.ApplyCORSHeaders(w, r, h.allowedOrigins)
	id := r.PathValue("id")
	if id == "" {
		writeError(w, newError(BadRequest, "missing anime id"))
		return
	}
	data, err := h.source.AnimeInfo(r.Context(), id)
	if err != nil {
		writeError(w, newError(BadGateway, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}
