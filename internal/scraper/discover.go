package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// sourceDescriptor is the shape of the JSON payload this package produces:
// a list of playable server entries discovered from the origin's episode
// page, each carrying the embed/stream URL the pipeline will classify,
// fetch, and rewrite downstream.
type sourceDescriptor struct {
	Servers []serverEntry `json:"servers"`
}

type serverEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// HTMLSource discovers origin stream URLs by scraping an episode page with
// goquery, grounded on the goquery dependency pulled in by the anime
// streaming corpus (alvarorichard-GoAnime's go.mod).
type HTMLSource struct {
	client  *http.Client
	baseURL string // origin site base, e.g. "https://watch.example"
}

// NewHTMLSource creates an HTMLSource against baseURL.
func NewHTMLSource(baseURL string) *HTMLSource {
	return &HTMLSource{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

// Discover fetches the episode page for episodeID and parses out every
// server-selector entry matching category, returning the one requested by
// server (or all of them if server is empty).
func (s *HTMLSource) Discover(ctx context.Context, episodeID string, category Category, server string) (json.RawMessage, error) {
	pageURL := fmt.Sprintf("%s/watch/%s?ep=%s&lang=%s", s.baseURL, url.PathEscape(episodeID), url.QueryEscape(episodeID), category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build episode page request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch episode page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("episode page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse episode page: %w", err)
	}

	desc := sourceDescriptor{Servers: make([]serverEntry, 0, 4)}
	doc.Find("[data-server-id]").Each(func(i int, sel *goquery.Selection) {
		name, _ := sel.Attr("data-server-name")
		srcURL, ok := sel.Attr("data-source-url")
		if !ok || srcURL == "" {
			return
		}
		if server != "" && name != server {
			return
		}
		desc.Servers = append(desc.Servers, serverEntry{Name: name, URL: srcURL})
	})

	if len(desc.Servers) == 0 {
		return nil, fmt.Errorf("no servers found for episode %s category %s", episodeID, category)
	}

	payload, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("marshal source descriptor: %w", err)
	}
	return payload, nil
}
