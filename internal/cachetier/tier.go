package cachetier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"
)

// maxRemotePayload is the size above which a payload is never written to the
// remote tier, though it may still live briefly in the in-process tier
// (spec §3 "Cache Entry").
const maxRemotePayload = 10 * 1024 * 1024

const (
	namespacePlaylist = "m3u8:"
	namespaceSegment  = "seg:"
	namespaceSource   = "src:"
)

// Tier composes the in-process and remote caches into the read-through,
// write-through policy from spec §4.F. The remote half is optional: a Tier
// built with a nil RedisTier degrades to memory-only, which is how the
// service runs when the configured Redis cannot be reached at startup.
type Tier struct {
	memory      *MemoryCache
	remote      *RedisTier
	playlistTTL time.Duration
	segmentTTL  time.Duration
}

// NewTier wires a memory cache and an optional remote tier (nil is
// permitted) with the TTLs configured for playlists vs. segments.
func NewTier(memory *MemoryCache, remote *RedisTier, playlistTTL, segmentTTL time.Duration) *Tier {
	return &Tier{memory: memory, remote: remote, playlistTTL: playlistTTL, segmentTTL: segmentTTL}
}

// HashKey returns the hex-encoded SHA-256 digest used as the cache key body
// for a given origin URL, per spec §3's `key` field.
func HashKey(originURL string) string {
	sum := sha256.Sum256([]byte(originURL))
	return hex.EncodeToString(sum[:])
}

// refererKey appends the referer suffix from spec §3's Origin Reference when
// referer is non-empty. Playlist (and segment) bodies bake the request's
// referer into every nested proxy URL, so two requests for the same origin
// URL with different referers must not share a cache entry.
func refererKey(originURL, referer string) string {
	key := HashKey(originURL)
	if referer != "" {
		key += "::ref=" + referer
	}
	return key
}

// GetPlaylist returns a previously rewritten playlist body for originURL,
// scoped to referer.
func (t *Tier) GetPlaylist(ctx context.Context, originURL, referer string) ([]byte, bool) {
	return t.get(ctx, namespacePlaylist+refererKey(originURL, referer), t.playlistTTL)
}

// SetPlaylist stores the rewritten playlist body for originURL, scoped to
// referer.
func (t *Tier) SetPlaylist(ctx context.Context, originURL, referer string, rewritten []byte) {
	t.set(ctx, namespacePlaylist+refererKey(originURL, referer), rewritten, t.playlistTTL)
}

// GetSegment returns cached segment bytes for originURL, scoped to referer
// (referer is forwarded to the origin too, so it can affect the response).
func (t *Tier) GetSegment(ctx context.Context, originURL, referer string) ([]byte, bool) {
	return t.get(ctx, namespaceSegment+refererKey(originURL, referer), t.segmentTTL)
}

// SetSegment stores segment bytes for originURL scoped to referer, skipping
// the remote tier when the payload exceeds the size policy.
func (t *Tier) SetSegment(ctx context.Context, originURL, referer string, data []byte) {
	t.set(ctx, namespaceSegment+refererKey(originURL, referer), data, t.segmentTTL)
}

// GetSource returns a cached payload under the scraper-cache namespace,
// keyed by the caller-supplied composite key (spec §4.H).
func (t *Tier) GetSource(ctx context.Context, compositeKey string, ttl time.Duration) ([]byte, bool) {
	return t.get(ctx, namespaceSource+compositeKey, ttl)
}

// SetSource stores a payload under the scraper-cache namespace with the
// given TTL (the scraper cache manages its own freshness window on top of
// this, per spec §4.H).
func (t *Tier) SetSource(ctx context.Context, compositeKey string, data []byte, ttl time.Duration) {
	t.set(ctx, namespaceSource+compositeKey, data, ttl)
}

func (t *Tier) get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	if data, ok := t.memory.Get(key); ok {
		return data, true
	}
	if t.remote == nil {
		return nil, false
	}
	data, ok, err := t.remote.Get(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("remote cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	// Populate the memory tier so the next read for this key is local.
	t.memory.Set(key, data, ttl)
	return data, true
}

func (t *Tier) set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	t.memory.Set(key, data, ttl)
	if t.remote == nil || len(data) > maxRemotePayload {
		return
	}
	// Remote writes are best-effort (spec §7 "Cache failures are logged and
	// swallowed").
	if err := t.remote.Set(ctx, key, data, ttl); err != nil {
		log.Error().Err(err).Str("key", key).Msg("remote cache write failed")
	}
}
