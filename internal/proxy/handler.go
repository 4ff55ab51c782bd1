package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/laurikarhu/hlsproxy/internal/cachetier"
	"github.com/laurikarhu/hlsproxy/internal/classify"
	"github.com/laurikarhu/hlsproxy/internal/fetch"
	"github.com/laurikarhu/hlsproxy/internal/middleware"
	"github.com/laurikarhu/hlsproxy/internal/rewrite"
	"github.com/laurikarhu/hlsproxy/internal/sign"
)

const (
	playlistCacheControl = "public, max-age=10"
	segmentCacheControl  = "public, max-age=31536000, immutable"
)

// playlistRetryBackoff is the initial delay of the 2 retries with exponential
// backoff for playlist fetch timeouts (spec §4.H "Failure semantics across components").
const playlistRetryBackoff = 200 * time.Millisecond

// Handler is the top-level `/m3u8` endpoint implementing the state machine
// from spec §4.G.
type Handler struct {
	selfHost       string
	allowedOrigins []string
	fetcher        *fetch.Fetcher
	tier           *cachetier.Tier
	build          rewrite.URLBuilder

	signer *sign.Signer
	table  *sign.HandleTable
}

// Config bundles a Handler's dependencies.
type Config struct {
	SelfHost       string
	AllowedOrigins []string
	Fetcher        *fetch.Fetcher
	Tier           *cachetier.Tier

	// Signed mode (both optional; nil means passthrough mode).
	Signer *sign.Signer
	Table  *sign.HandleTable
}

// NewHandler creates a Handler in passthrough or signed-handle mode,
// depending on whether cfg.Signer/Table are set.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		selfHost:       cfg.SelfHost,
		allowedOrigins: cfg.AllowedOrigins,
		fetcher:        cfg.Fetcher,
		tier:           cfg.Tier,
		signer:         cfg.Signer,
		table:          cfg.Table,
	}
	if cfg.Signer != nil && cfg.Table != nil {
		h.build = signedBuilder(cfg.Table, cfg.Signer)
	} else {
		h.build = passthroughBuilder()
	}
	return h
}

// ServeM3U8 handles GET/HEAD/OPTIONS /m3u8.
func (h *Handler) ServeM3U8(w http.ResponseWriter, r *http.Request) {
	middleware.ApplyCORSHeaders(w, r, h.allowedOrigins)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	originURL, referer, err := h.resolveTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rng := r.Header.Get("Range")
	h.serve(w, r, originURL, referer, rng)
}

// resolveTarget extracts the origin URL and referer from either the plain
// `?url=&ref=` query (passthrough mode) or a signed `?handle=` (signed
// mode), per spec §4.E.
func (h *Handler) resolveTarget(r *http.Request) (originURL, referer string, err error) {
	q := r.URL.Query()

	if encoded := q.Get("handle"); encoded != "" {
		if h.table == nil || h.signer == nil {
			return "", "", newError(BadRequest, "signed handles are not enabled")
		}
		handleID, expiry, sig, decErr := sign.DecodeHandle(encoded)
		if decErr != nil {
			return "", "", newError(BadRequest, "malformed handle")
		}
		if !h.signer.Verify(handleID, expiry, "segment", sig) {
			return "", "", newError(NotFound, "handle unknown or expired")
		}
		handle, ok := h.table.Get(handleID)
		if !ok {
			return "", "", newError(NotFound, "handle unknown or expired")
		}
		return handle.OriginURL, handle.Referer, nil
	}

	raw := q.Get("url")
	if raw == "" {
		return "", "", newError(BadRequest, "missing url parameter")
	}
	u, parseErr := url.Parse(raw)
	if parseErr != nil || u.Scheme == "" || u.Host == "" {
		return "", "", newError(BadRequest, "invalid url parameter")
	}
	return raw, q.Get("ref"), nil
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, originURL, referer, rangeHeader string) {
	ctx := r.Context()

	u, err := url.Parse(originURL)
	if err != nil {
		writeError(w, newError(BadRequest, "invalid url parameter"))
		return
	}

	// Classification here uses the path suffix alone. A URL without a
	// recognized suffix is Opaque and goes down the binary path; the
	// origin's Content-Type is not used to reclassify it.
	kind := classify.Classify(u, "")
	bypassCache := rangeHeader != ""

	switch {
	case kind.TextRewritable():
		h.serveText(ctx, w, r, u, originURL, referer, kind)
	default:
		h.serveBinary(ctx, w, r, originURL, referer, rangeHeader, bypassCache)
	}
}

func (h *Handler) serveText(ctx context.Context, w http.ResponseWriter, r *http.Request, u *url.URL, originURL, referer string, kind classify.Kind) {
	if cached, ok := h.tier.GetPlaylist(ctx, originURL, referer); ok {
		h.writeText(w, r, cached, contentTypeFor(kind))
		return
	}

	body, contentType, err := h.fetchTextWithRetry(ctx, originURL, referer)
	if err != nil {
		writeError(w, err)
		return
	}

	refinedKind := kind
	if refinedKind == classify.Opaque {
		refinedKind = classify.Classify(u, contentType)
	}

	rewritten, err := h.rewrite(refinedKind, body, originURL, referer)
	if err != nil {
		writeError(w, err)
		return
	}

	h.tier.SetPlaylist(ctx, originURL, referer, rewritten)
	h.writeText(w, r, rewritten, contentTypeFor(refinedKind))
}

// fetchTextWithRetry retries a timed-out playlist fetch up to twice with
// 200ms exponential backoff (spec §4.H).
func (h *Handler) fetchTextWithRetry(ctx context.Context, originURL, referer string) ([]byte, string, error) {
	var lastErr error
	backoff := playlistRetryBackoff
	for attempt := 0; attempt <= 2; attempt++ {
		resp, err := h.fetcher.Do(ctx, fetch.Request{URL: originURL, Referer: referer, SelfHost: h.selfHost})
		if err == nil {
			defer resp.Body.Close()
			data, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, "", readErr
			}
			return data, resp.Header.Get("Content-Type"), nil
		}
		lastErr = err
		if err != fetch.ErrTimeout {
			return nil, "", err
		}
		if attempt < 2 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
			backoff *= 2
		}
	}
	return nil, "", lastErr
}

func (h *Handler) rewrite(kind classify.Kind, body []byte, originURL, referer string) ([]byte, error) {
	switch kind {
	case classify.PlaylistM3U8:
		out, err := rewrite.M3U8(string(body), originURL, referer, h.build)
		return []byte(out), err
	case classify.SubtitleVTT:
		out, err := rewrite.VTT(string(body), originURL, referer, h.build)
		return []byte(out), err
	case classify.ManifestMPD:
		out, err := rewrite.MPD(string(body), originURL, referer, h.build)
		return []byte(out), err
	default:
		return body, nil
	}
}

func (h *Handler) writeText(w http.ResponseWriter, r *http.Request, body []byte, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", playlistCacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(body)
	}
}

func (h *Handler) serveBinary(ctx context.Context, w http.ResponseWriter, r *http.Request, originURL, referer, rangeHeader string, bypassCache bool) {
	if !bypassCache {
		if cached, ok := h.tier.GetSegment(ctx, originURL, referer); ok {
			w.Header().Set("Cache-Control", segmentCacheControl)
			w.Header().Set("Content-Length", strconv.Itoa(len(cached)))
			w.WriteHeader(http.StatusOK)
			if r.Method != http.MethodHead {
				w.Write(cached)
			}
			return
		}
	}

	resp, err := h.fetcher.Do(ctx, fetch.Request{
		URL:             originURL,
		Referer:         referer,
		Range:           rangeHeader,
		Binary:          true,
		SelfHost:        h.selfHost,
		IfNoneMatch:     r.Header.Get("If-None-Match"),
		IfModifiedSince: r.Header.Get("If-Modified-Since"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		for key, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		w.WriteHeader(http.StatusNotModified)
		return
	}

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	status := http.StatusOK
	if resp.StatusCode == http.StatusPartialContent {
		status = http.StatusPartialContent
		w.Header().Set("Accept-Ranges", "bytes")
	}

	if bypassCache {
		// Range requests (and anything else marked non-cacheable) pipe
		// straight from the origin response to the client without ever
		// holding the full body in memory (spec §1(e), §4.G PIPE_STREAM).
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			io.Copy(w, resp.Body)
		}
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", segmentCacheControl)
	h.tier.SetSegment(ctx, originURL, referer, data)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		io.Copy(w, bytes.NewReader(data))
	}
}

func contentTypeFor(kind classify.Kind) string {
	switch kind {
	case classify.PlaylistM3U8:
		return "application/vnd.apple.mpegurl"
	case classify.SubtitleVTT:
		return "text/vtt"
	case classify.ManifestMPD:
		return "application/dash+xml"
	default:
		return "application/octet-stream"
	}
}

