package proxy

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"

	"github.com/laurikarhu/hlsproxy/internal/middleware"
	"github.com/laurikarhu/hlsproxy/internal/scraper"
)

// episodeIDPattern implements the sanitization rule from spec §6: decode
// once, then reduce to `base[?ep=digits]`, discarding any other query
// fragments.
var episodeIDPattern = regexp.MustCompile(`^([^?]+)(\?ep=(\d+))?`)

func sanitizeEpisodeID(raw string) (string, error) {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return "", err
	}
	m := episodeIDPattern.FindStringSubmatch(decoded)
	if m == nil || m[1] == "" {
		return "", newError(BadRequest, "invalid animeEpisodeId")
	}
	if m[3] != "" {
		return m[1] + "?ep=" + m[3], nil
	}
	return m[1], nil
}

// EpisodeHandler serves the /episode/* endpoints backed by the scraper cache.
type EpisodeHandler struct {
	allowedOrigins  []string
	cache           *scraper.Cache
	defaultCategory scraper.Category
	defaultServer   string
}

// NewEpisodeHandler creates an EpisodeHandler. defaultCategory/defaultServer
// resolve the spec's open question of which category and server to assume
// when a client omits them; both come from the operator's configuration
// rather than being hardcoded, so a deployment fronting a single server can
// change the default without a code change.
func NewEpisodeHandler(allowedOrigins []string, cache *scraper.Cache, defaultCategory scraper.Category, defaultServer string) *EpisodeHandler {
	return &EpisodeHandler{
		allowedOrigins:  allowedOrigins,
		cache:           cache,
		defaultCategory: defaultCategory,
		defaultServer:   defaultServer,
	}
}

// ServeServers handles GET /episode/servers.
func (h *EpisodeHandler) ServeServers(w http.ResponseWriter, r *http.Request) {
	middleware.ApplyCORSHeaders(w, r, h.allowedOrigins)
	episodeID, err := sanitizeEpisodeID(r.URL.Query().Get("animeEpisodeId"))
	if err != nil {
		writeError(w, err)
		return
	}

	rec, fromCache, stale, resolveErr := h.cache.Resolve(r.Context(), episodeID, h.defaultCategory, "")
	if resolveErr != nil {
		writeError(w, resolveErr)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":      rec.Payload,
		"fromCache": fromCache,
		"stale":     stale,
	})
}

// ServeSources handles GET /episode/sources.
func (h *EpisodeHandler) ServeSources(w http.ResponseWriter, r *http.Request) {
	middleware.ApplyCORSHeaders(w, r, h.allowedOrigins)

	episodeID, err := sanitizeEpisodeID(r.URL.Query().Get("animeEpisodeId"))
	if err != nil {
		writeError(w, err)
		return
	}

	category := scraper.Category(r.URL.Query().Get("category"))
	switch category {
	case scraper.CategorySub, scraper.CategoryDub, scraper.CategoryRaw:
	case "":
		category = h.defaultCategory
	default:
		writeError(w, newError(BadRequest, "invalid category"))
		return
	}

	server := r.URL.Query().Get("server")
	if server == "" {
		server = h.defaultServer
	}

	rec, fromCache, stale, resolveErr := h.cache.Resolve(r.Context(), episodeID, category, server)
	if resolveErr != nil {
		writeError(w, resolveErr)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":      rec.Payload,
		"fromCache": fromCache,
		"stale":     stale,
	})
}

type prewarmRequest struct {
	EpisodeIDs []string         `json:"episodeIds"`
	Category   scraper.Category `json:"category"`
	Server     string           `json:"server"`
}

// ServePrewarm handles POST /episode/prewarm.
func (h *EpisodeHandler) ServePrewarm(w http.ResponseWriter, r *http.Request) {
	middleware.ApplyCORSHeaders(w, r, h.allowedOrigins)

	var req prewarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newError(BadRequest, "invalid request body"))
		return
	}
	if req.Category == "" {
		req.Category = h.defaultCategory
	}
	if req.Server == "" {
		req.Server = h.defaultServer
	}

	sanitized := make([]string, 0, len(req.EpisodeIDs))
	for _, raw := range req.EpisodeIDs {
		id, err := sanitizeEpisodeID(raw)
		if err != nil {
			continue
		}
		sanitized = append(sanitized, id)
	}

	count := h.cache.Prewarm(r.Context(), sanitized, req.Category, req.Server)

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "scheduled",
		"count":  count,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
