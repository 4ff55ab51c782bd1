// Package fetch implements the Origin Fetcher (spec §4.B): issuing outbound
// requests to origin servers with browser-like headers, per-hop SSRF
// re-validation, and tiered deadlines. Grounded on the proxy request
// construction and hop-by-hop header filtering of the teacher's
// OwncastProxyHandler.ProxyRequest (internal/handlers/owncast_proxy.go).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

)

// Checker validates an origin URL before it is dialed; satisfied by
// *ssrf.Guard in production and fakeable in tests.
type Checker interface {
	Check(ctx context.Context, u *url.URL, selfHost string) error
}

// Deadlines for the three fetch classes named in spec §4.B.
const (
	TextDeadline    = 8 * time.Second
	BinaryDeadline  = 12 * time.Second
	CeilingDeadline = 30 * time.Second
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

const maxRedirects = 5

// ErrTimeout is returned when the fetch deadline elapses before a response
// (or enough of a response) is received.
var ErrTimeout = errors.New("origin fetch timed out")

// UpstreamError wraps a non-2xx/3xx response from the origin, carrying the
// status code so the Pipeline can map it per spec §7.
type UpstreamError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// Request describes an outbound fetch.
type Request struct {
	URL      string
	Method   string // defaults to GET
	Referer  string
	Range    string // Range header value, forwarded verbatim if non-empty
	Binary   bool   // selects BinaryDeadline over TextDeadline when Deadline is zero
	Deadline time.Duration
	SelfHost string // the proxy's own host, for SSRF self-reference rejection

	// IfNoneMatch/IfModifiedSince are forwarded verbatim so a conditional
	// GET from the player can reach the origin and come back as a 304,
	// grounded on the LunaTV proxy's shouldReturn304FromCache passthrough.
	IfNoneMatch     string
	IfModifiedSince string
}

// Response is the result of a successful fetch. Body must be closed by the
// caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	FinalURL   string // the URL after following redirects
}

// Fetcher issues origin requests through the SSRF guard, re-checking every
// redirect hop before following it (spec §4.D).
type Fetcher struct {
	client *http.Client
	guard  Checker
}

// New creates a Fetcher with its own http.Client, whose CheckRedirect
// enforces per-hop SSRF checks and the max redirect count.
func New(guard Checker) *Fetcher {
	f := &Fetcher{guard: guard}
	f.client = &http.Client{
		CheckRedirect: f.checkRedirect,
	}
	return f
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	// selfHost is threaded through the request context by Do.
	selfHost, _ := req.Context().Value(selfHostKey{}).(string)
	if err := f.guard.Check(req.Context(), req.URL, selfHost); err != nil {
		return err
	}
	return nil
}

type selfHostKey struct{}

// Do executes req, applying the appropriate deadline and browser-like
// headers, and returns the response for the caller to classify, rewrite, and
// cache. The caller must close Response.Body.
func (f *Fetcher) Do(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if err := f.guard.Check(ctx, u, req.SelfHost); err != nil {
		return nil, err
	}

	deadline := req.Deadline
	if deadline == 0 {
		if req.Binary {
			deadline = BinaryDeadline
		} else {
			deadline = TextDeadline
		}
	}
	if deadline > CeilingDeadline {
		deadline = CeilingDeadline
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	ctx = context.WithValue(ctx, selfHostKey{}, req.SelfHost)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	applyBrowserHeaders(httpReq, req.Referer)
	if req.Range != "" {
		httpReq.Header.Set("Range", req.Range)
	}
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("origin request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: req.URL}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     stripHopByHop(resp.Header),
		Body:       resp.Body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

func applyBrowserHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Identity encoding preserves Range byte offsets; a compressed response
	// can't be sliced the way a player's Range request expects (spec §4.B).
	req.Header.Set("Accept-Encoding", "identity")
	if referer != "" {
		req.Header.Set("Referer", referer)
		if u, err := url.Parse(referer); err == nil {
			req.Header.Set("Origin", u.Scheme+"://"+u.Host)
		}
	}
}

var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func stripHopByHop(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		if hopByHopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[k] = v
	}
	if conn := h.Get("Connection"); conn != "" {
		for _, token := range strings.Split(conn, ",") {
			delete(out, http.CanonicalHeaderKey(strings.TrimSpace(token)))
		}
	}
	return out
}
