// Package rewrite implements the Manifest Rewriter (spec §4.C): parsing
// M3U8, WebVTT and MPD text and rewriting every URI reference into a proxy
// URL, preserving every other byte.
package rewrite

import (
	"net/url"
	"strings"
)

// Resolve implements the four-way precedence from spec §4.C: absolute URLs
// pass through, protocol-relative URLs inherit the base's scheme,
// root-relative URLs inherit the base's scheme+host, and anything else is
// resolved relative to base per RFC 3986 (net/url.ResolveReference).
func Resolve(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)

	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, nil
	}
	if strings.HasPrefix(href, "//") {
		return base.Scheme + ":" + href, nil
	}
	if strings.HasPrefix(href, "/") {
		return base.Scheme + "://" + base.Host + href, nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
