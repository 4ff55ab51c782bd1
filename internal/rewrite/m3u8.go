package rewrite

import (
	"net/url"
	"regexp"
	"strings"
)

// uriAttrRegex matches a quoted URI="..." attribute inside an M3U8 directive
// line, grounded on the LunaTV proxy's uriRegex (other_examples) and
// extended here to the directives spec §4.C names explicitly.
var uriAttrRegex = regexp.MustCompile(`URI="([^"]*)"`)

// uriBearingDirectives are the comment-prefixed lines whose attributes carry
// URIs that must be rewritten in place even though the line itself is a
// comment (spec §4.C).
var uriBearingDirectives = []string{"#EXT-X-KEY", "#EXT-X-MAP", "#EXT-X-MEDIA"}

// M3U8 rewrites every URI reference in an M3U8 playlist. playlistURL is the
// absolute URL the playlist itself was fetched from (used to resolve
// relative references); referer is carried through to every rewritten URL.
// Every byte of every comment/blank line is preserved untouched; only URI
// reference lines and URI="..." attributes are rewritten (spec invariant 1).
func M3U8(body, playlistURL, referer string, build URLBuilder) (string, error) {
	if len(body) == 0 {
		return "", ErrEmptyUpstream
	}

	base, err := url.Parse(playlistURL)
	if err != nil {
		return "", err
	}

	// Split preserving line endings isn't required by the invariant (only
	// content and line count must match); splitting on "\n" and rejoining
	// with "\n" satisfies "preserves line count" even for CRLF input since
	// the trailing "\r" stays attached to its line's content.
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		trailingCR := line[len(trimmed):]

		switch {
		case trimmed == "":
			// blank line, preserved verbatim
		case strings.HasPrefix(trimmed, "#"):
			if isURIBearingDirective(trimmed) {
				lines[i] = rewriteURIAttr(trimmed, base, referer, build) + trailingCR
			}
			// other comment/directive lines are untouched
		default:
			resolved, rerr := Resolve(base, trimmed)
			if rerr != nil {
				continue
			}
			lines[i] = build(resolved, referer) + trailingCR
		}
	}

	return strings.Join(lines, "\n"), nil
}

func isURIBearingDirective(line string) bool {
	for _, prefix := range uriBearingDirectives {
		if strings.HasPrefix(line, prefix) {
			return strings.Contains(line, `URI="`)
		}
	}
	return false
}

func rewriteURIAttr(line string, base *url.URL, referer string, build URLBuilder) string {
	return uriAttrRegex.ReplaceAllStringFunc(line, func(match string) string {
		sub := uriAttrRegex.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		resolved, err := Resolve(base, sub[1])
		if err != nil {
			return match
		}
		return `URI="` + build(resolved, referer) + `"`
	})
}
