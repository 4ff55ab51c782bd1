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

// titleEntry is one listing row scraped from a catalog page.
type titleEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// HTMLCatalogSource scrapes the origin site's home, search, and info pages
// with goquery, implementing proxy.CatalogSource.
type HTMLCatalogSource struct {
	client  *http.Client
	baseURL string
}

// NewHTMLCatalogSource creates an HTMLCatalogSource against baseURL.
func NewHTMLCatalogSource(baseURL string) *HTMLCatalogSource {
	return &HTMLCatalogSource{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

// Home scrapes the site's landing page listing.
func (s *HTMLCatalogSource) Home(ctx context.Context) (json.RawMessage, error) {
	return s.scrapeListing(ctx, s.baseURL+"/", "[data-title-id]")
}

// Search scrapes the site's search results page for query.
func (s *HTMLCatalogSource) Search(ctx context.Context, query string) (json.RawMessage, error) {
	pageURL := fmt.Sprintf("%s/search?keyword=%s", s.baseURL, url.QueryEscape(query))
	return s.scrapeListing(ctx, pageURL, "[data-title-id]")
}

// AnimeInfo scrapes an individual title's info page.
func (s *HTMLCatalogSource) AnimeInfo(ctx context.Context, id string) (json.RawMessage, error) {
	pageURL := fmt.Sprintf("%s/%s", s.baseURL, url.PathEscape(id))

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	info := titleEntry{ID: id, URL: pageURL}
	info.Title = doc.Find("[data-title-name]").First().Text()

	payload, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal anime info: %w", err)
	}
	return payload, nil
}

func (s *HTMLCatalogSource) scrapeListing(ctx context.Context, pageURL, selector string) (json.RawMessage, error) {
	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	entries := make([]titleEntry, 0, 16)
	doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
		id, _ := sel.Attr("data-title-id")
		href, _ := sel.Attr("href")
		entries = append(entries, titleEntry{
			ID:    id,
			Title: sel.Text(),
			URL:   href,
		})
	})

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal listing: %w", err)
	}
	return payload, nil
}

func (s *HTMLCatalogSource) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}
