package proxy

import (
	"net/url"
	"strings"

	"github.com/laurikarhu/hlsproxy/internal/rewrite"
	"github.com/laurikarhu/hlsproxy/internal/sign"
)

// passthroughBuilder mints `/m3u8?url=<urlencoded>&ref=<urlencoded>` proxy
// URLs, the stateless strategy most of the corpus's proxies use. "$" is left
// unescaped so DASH SegmentTemplate tokens ("$Number$" etc.) stay literal
// in the rewritten URL for the player to substitute.
func passthroughBuilder() rewrite.URLBuilder {
	return func(originURL, referer string) string {
		q := url.Values{}
		q.Set("url", originURL)
		if referer != "" {
			q.Set("ref", referer)
		}
		return "/m3u8?" + strings.ReplaceAll(q.Encode(), "%24", "$")
	}
}

// signedBuilder mints `/m3u8?handle=<handleId>|<expiry>|<hmac>` proxy URLs,
// storing the true origin URL server-side so the player never sees it.
func signedBuilder(table *sign.HandleTable, signer *sign.Signer) rewrite.URLBuilder {
	return func(originURL, referer string) string {
		h := table.Put(originURL, referer)
		sig := signer.Sign(h.ID, h.Expiry, "segment")
		encoded := sign.EncodeHandle(h.ID, h.Expiry, sig)
		q := url.Values{}
		q.Set("handle", encoded)
		return "/m3u8?" + q.Encode()
	}
}
