package rewrite

import "errors"

// ErrEmptyUpstream is surfaced when a rewrite is attempted on an empty body
// (spec §4.C "Edge rules").
var ErrEmptyUpstream = errors.New("empty upstream body")

// URLBuilder mints the proxy-facing URL for an origin reference. The
// Pipeline supplies either a pass-through builder (?url=...&ref=...) or a
// signed-handle builder, per spec §9 "Handle table vs pass-through".
type URLBuilder func(originURL, referer string) string
