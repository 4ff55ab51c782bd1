package rewrite

import (
	"net/url"
	"regexp"
)

// vttURLRegex finds bare URL references embedded in WebVTT cue text: an
// absolute http(s) URL, or a "./"/"../"-relative one, e.g. an image/tooltip
// cue ("card" style subtitles from some origins embed a thumbnail URL or a
// sibling-file reference directly in the cue payload). Cue timing lines
// ("-->") and styling blocks contain neither form and are left untouched.
var vttURLRegex = regexp.MustCompile(`https?://[^\s"'<>]+|\.\.?/[^\s"'<>]+`)

// VTT rewrites bare URLs found in WebVTT cue payloads. Timing lines
// ("00:00:01.000 --> 00:00:04.000"), cue identifiers, NOTE/STYLE/REGION
// blocks, and plain text are preserved byte-for-byte except where a URL is
// found (spec §4.C).
func VTT(body, docURL, referer string, build URLBuilder) (string, error) {
	if len(body) == 0 {
		return "", ErrEmptyUpstream
	}

	base, err := url.Parse(docURL)
	if err != nil {
		return "", err
	}

	out := vttURLRegex.ReplaceAllStringFunc(body, func(match string) string {
		resolved, rerr := Resolve(base, match)
		if rerr != nil {
			return match
		}
		return build(resolved, referer)
	})

	return out, nil
}
