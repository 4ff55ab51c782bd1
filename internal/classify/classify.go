// Package classify implements the URL Classifier (spec §4.A): determining
// whether an origin URL refers to a playlist, subtitle, manifest, or opaque
// binary segment from its path suffix and, failing that, its Content-Type.
package classify

import (
	"net/url"
	"strings"
)

// Kind is the tagged variant of resource kinds described in spec §3.
type Kind int

const (
	// Opaque is any binary-streamable resource not otherwise recognized.
	Opaque Kind = iota
	PlaylistM3U8
	SubtitleVTT
	ManifestMPD
	MediaSegment
	Image
)

// String names the kind for logging.
func (k Kind) String() string {
	switch k {
	case PlaylistM3U8:
		return "m3u8"
	case SubtitleVTT:
		return "vtt"
	case ManifestMPD:
		return "mpd"
	case MediaSegment:
		return "segment"
	case Image:
		return "image"
	default:
		return "opaque"
	}
}

// TextRewritable reports whether this kind's body must pass through the
// Manifest Rewriter rather than being streamed verbatim.
func (k Kind) TextRewritable() bool {
	switch k {
	case PlaylistM3U8, SubtitleVTT, ManifestMPD:
		return true
	default:
		return false
	}
}

var suffixKinds = map[string]Kind{
	".m3u8": PlaylistM3U8,
	".m3u":  PlaylistM3U8,
	".vtt":  SubtitleVTT,
	".srt":  SubtitleVTT,
	".mpd":  ManifestMPD,
	".ts":   MediaSegment,
	".m4s":  MediaSegment,
	".mp4":  MediaSegment,
	".m4a":  MediaSegment,
	".m4v":  MediaSegment,
	".aac":  MediaSegment,
	".flac": MediaSegment,
	".key":  MediaSegment,
	".bin":  MediaSegment,
	".webm": MediaSegment,
	".jpg":  Image,
	".jpeg": Image,
	".png":  Image,
	".webp": Image,
}

// contentTypeKinds matches on a Content-Type prefix, longest-match ordering
// handled by iterating the slice in declaration order (most specific first).
var contentTypeKinds = []struct {
	prefix string
	kind   Kind
}{
	{"application/vnd.apple.mpegurl", PlaylistM3U8},
	{"application/x-mpegurl", PlaylistM3U8},
	{"audio/mpegurl", PlaylistM3U8},
	{"application/dash+xml", ManifestMPD},
	{"text/vtt", SubtitleVTT},
	{"image/", Image},
	{"video/", MediaSegment},
	{"audio/", MediaSegment},
	{"application/xml", ManifestMPD},
	{"application/json", Opaque},
	{"text/", SubtitleVTT},
}

// Classify derives the Resource Kind for u, consulting contentType only when
// the path suffix is unrecognized. It is total and side-effect-free.
func Classify(u *url.URL, contentType string) Kind {
	if u != nil {
		path := strings.ToLower(u.Path)
		for suffix, kind := range suffixKinds {
			if strings.HasSuffix(path, suffix) {
				return kind
			}
		}
	}

	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	for _, entry := range contentTypeKinds {
		if strings.HasPrefix(ct, entry.prefix) {
			return entry.kind
		}
	}

	return Opaque
}
