package rewrite

import (
	"net/url"
	"regexp"
)

// MPD rewrites URL-bearing elements and attributes in a DASH MPD manifest.
// Rather than decoding and re-encoding the document with encoding/xml (which
// reformats whitespace and drops unrecognized elements/namespaces), matching
// is done with targeted regexes so every other byte of the manifest is
// preserved untouched, matching the M3U8/VTT rewriters' behavior (spec
// §4.C). SegmentTemplate's "$Number$"/"$Time$"/"$RepresentationID$"
// placeholders are not interpreted here: an attribute value containing them
// is resolved and handed to the URLBuilder as one unit (see rewriteAttr).
var (
	mpdBaseURLRegex   = regexp.MustCompile(`(<BaseURL[^>]*>)([^<]*)(</BaseURL>)`)
	mpdMediaAttrRegex = regexp.MustCompile(`\bmedia="([^"]*)"`)
	mpdInitAttrRegex  = regexp.MustCompile(`\binitialization="([^"]*)"`)
	mpdSourceURLRegex = regexp.MustCompile(`\bsourceURL="([^"]*)"`)
)

// MPD rewrites the manifest's BaseURL elements and SegmentTemplate/
// SegmentURL/Initialization URL attributes into proxy URLs. docURL is the
// absolute URL the manifest was fetched from.
func MPD(body, docURL, referer string, build URLBuilder) (string, error) {
	if len(body) == 0 {
		return "", ErrEmptyUpstream
	}

	base, err := url.Parse(docURL)
	if err != nil {
		return "", err
	}

	out := mpdBaseURLRegex.ReplaceAllStringFunc(body, func(match string) string {
		sub := mpdBaseURLRegex.FindStringSubmatch(match)
		if len(sub) != 4 {
			return match
		}
		resolved, rerr := Resolve(base, sub[2])
		if rerr != nil {
			return match
		}
		return sub[1] + build(resolved, referer) + sub[3]
	})

	out = rewriteAttr(out, mpdMediaAttrRegex, "media", base, referer, build)
	out = rewriteAttr(out, mpdInitAttrRegex, "initialization", base, referer, build)
	out = rewriteAttr(out, mpdSourceURLRegex, "sourceURL", base, referer, build)

	return out, nil
}

// rewriteAttr resolves and rewrites every occurrence of attr="..." matched
// by re. SegmentTemplate tokens ("$Number$", "$Time$",
// "$RepresentationID$") are not special-cased: net/url path resolution
// treats "$" as an ordinary character, so a template attribute value is
// resolved as one opaque unit and the builder wraps the whole thing,
// exactly as it would a concrete segment path.
func rewriteAttr(body string, re *regexp.Regexp, attr string, base *url.URL, referer string, build URLBuilder) string {
	return re.ReplaceAllStringFunc(body, func(match string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		resolved, rerr := Resolve(base, sub[1])
		if rerr != nil {
			return match
		}
		return attr + `="` + build(resolved, referer) + `"`
	})
}
