package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laurikarhu/hlsproxy/internal/cachetier"
	"github.com/laurikarhu/hlsproxy/internal/scraper"
)

type fakeEpisodeSource struct {
	payload json.RawMessage
	err     error
}

func (f *fakeEpisodeSource) Discover(ctx context.Context, episodeID string, category scraper.Category, server string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func newTestEpisodeHandler(src scraper.Source) *EpisodeHandler {
	tier := cachetier.NewTier(cachetier.NewMemoryCache(100, 1<<20), nil, time.Second, time.Second)
	cache := scraper.NewCache(tier, 1800*time.Second, func() (scraper.Source, error) { return src, nil })
	return NewEpisodeHandler(nil, cache, scraper.CategorySub, "hd-1")
}

func TestServeServersSanitizesEpisodeIDAndReturnsPayload(t *testing.T) {
	src := &fakeEpisodeSource{payload: json.RawMessage(`{"servers":["hd-1"]}`)}
	h := newTestEpisodeHandler(src)

	req := httptest.NewRequest(http.MethodGet, "/episode/servers?animeEpisodeId=naruto%3Fep%3D1", nil)
	rec := httptest.NewRecorder()
	h.ServeServers(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["fromCache"])
	assert.Equal(t, map[string]any{"servers": []any{"hd-1"}}, body["data"])
}

func TestServeServersInvalidEpisodeIDIsBadRequest(t *testing.T) {
	src := &fakeEpisodeSource{payload: json.RawMessage(`{}`)}
	h := newTestEpisodeHandler(src)

	req := httptest.NewRequest(http.MethodGet, "/episode/servers?animeEpisodeId=", nil)
	rec := httptest.NewRecorder()
	h.ServeServers(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeSourcesRejectsInvalidCategory(t *testing.T) {
	src := &fakeEpisodeSource{payload: json.RawMessage(`{}`)}
	h := newTestEpisodeHandler(src)

	req := httptest.NewRequest(http.MethodGet, "/episode/sources?animeEpisodeId=naruto&category=bogus", nil)
	rec := httptest.NewRecorder()
	h.ServeSources(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeSourcesDefaultsCategoryAndServer(t *testing.T) {
	src := &fakeEpisodeSource{payload: json.RawMessage(`{"sources":[]}`)}
	h := newTestEpisodeHandler(src)

	req := httptest.NewRequest(http.MethodGet, "/episode/sources?animeEpisodeId=naruto", nil)
	rec := httptest.NewRecorder()
	h.ServeSources(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServePrewarmSkipsInvalidIDsAndSchedulesValid(t *testing.T) {
	src := &fakeEpisodeSource{payload: json.RawMessage(`{}`)}
	h := newTestEpisodeHandler(src)

	body, _ := json.Marshal(prewarmRequest{
		EpisodeIDs: []string{"naruto", "%zz", "one-piece"},
	})
	req := httptest.NewRequest(http.MethodPost, "/episode/prewarm", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServePrewarm(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["count"])
}

func TestServePrewarmInvalidBodyIsBadRequest(t *testing.T) {
	src := &fakeEpisodeSource{payload: json.RawMessage(`{}`)}
	h := newTestEpisodeHandler(src)

	req := httptest.NewRequest(http.MethodPost, "/episode/prewarm", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.ServePrewarm(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
