package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLCatalogSourceHomeParsesListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a data-title-id="1" href="/1">One Piece</a>
			<a data-title-id="2" href="/2">Naruto</a>
		</body></html>`))
	}))
	defer server.Close()

	src := NewHTMLCatalogSource(server.URL)
	payload, err := src.Home(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(payload), "One Piece")
	assert.Contains(t, string(payload), `"id":"2"`)
}

func TestHTMLCatalogSourceSearchEscapesQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("keyword")
		w.Write([]byte(`<html><body></body></html>`))
	}))
	defer server.Close()

	src := NewHTMLCatalogSource(server.URL)
	_, err := src.Search(context.Background(), "attack on titan")
	require.NoError(t, err)
	assert.Equal(t, "attack on titan", gotQuery)
}

func TestHTMLCatalogSourceAnimeInfoReturnsTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1 data-title-name>Naruto</h1></body></html>`))
	}))
	defer server.Close()

	src := NewHTMLCatalogSource(server.URL)
	payload, err := src.AnimeInfo(context.Background(), "naruto")
	require.NoError(t, err)
	assert.Contains(t, string(payload), "Naruto")
}

func TestHTMLCatalogSourceNonOKStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	src := NewHTMLCatalogSource(server.URL)
	_, err := src.Home(context.Background())
	assert.Error(t, err)
}
