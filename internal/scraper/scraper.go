// Package scraper implements the Auxiliary Scraper Cache (spec §4.H): a
// durable, TTL'd record of (episodeId, category, server) -> sources
// descriptor, backed by the origin-discovery HTML scraper and the remote
// cache tier. Lazy initialization and pre-warm deduplication are grounded on
// the teacher's StreamHandler.playlistFlight/segmentFlight singleflight.Group
// pattern (internal/handlers/stream.go).
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/laurikarhu/hlsproxy/internal/cachetier"
)

// Category is the audio/track variant requested for an episode.
type Category string

const (
	CategorySub Category = "sub"
	CategoryDub Category = "dub"
	CategoryRaw Category = "raw"
)

// freshWindow is the staleness threshold from spec §4.H / §3.
const freshWindow = 1800 * time.Second

// Record is a scraper cache entry.
type Record struct {
	CompositeKey string          `json:"compositeKey"`
	EpisodeID    string          `json:"episodeId"`
	Category     Category        `json:"category"`
	Server       string          `json:"server"`
	Payload      json.RawMessage `json:"payload"`
	FetchedAt    time.Time       `json:"fetchedAt"`
}

// CompositeKey derives the record key per spec §3.
func CompositeKey(episodeID string, category Category, server string) string {
	return fmt.Sprintf("%s::%s::%s", episodeID, category, server)
}

func (r *Record) fresh(now time.Time) bool {
	return now.Sub(r.FetchedAt) < freshWindow
}

// Source performs origin discovery for a single (episode, category, server)
// triple, returning an opaque JSON payload describing the available
// sources. Implementations scrape the upstream site (goquery-based in
// production); tests supply a fake.
type Source interface {
	Discover(ctx context.Context, episodeID string, category Category, server string) (json.RawMessage, error)
}

// Cache composes the Source with the remote cache tier, implementing the
// freshness and stale-on-failure rules from spec §4.H.
type Cache struct {
	tier *cachetier.Tier
	ttl  time.Duration

	mu       sync.Mutex
	source   Source
	initFn   func() (Source, error)
	initErr  error
	initDone bool

	// durable optionally backstops the tier with Postgres, for episodes that
	// have fallen out of the Redis/memory TTL window entirely. Nil when no
	// DATABASE_URL was configured; Resolve then behaves exactly as before.
	durable *DurableStore

	prewarm singleflight.Group
}

// SetDurableStore attaches a Postgres-backed backstop. It is consulted only
// after a cache miss and a failed live discovery, and written through on
// every successful discovery.
func (c *Cache) SetDurableStore(store *DurableStore) {
	c.durable = store
}

// NewCache creates a scraper Cache. initFn lazily constructs the Source on
// first use (spec §9 "Lazy scraper initialization"); it may be expensive
// (e.g. warm an HTTP client, validate the upstream is reachable). Callers
// serialize on a sync.Mutex; once initFn succeeds its Source is reused, and
// after a failure the next call runs initFn again.
func NewCache(tier *cachetier.Tier, ttl time.Duration, initFn func() (Source, error)) *Cache {
	return &Cache{tier: tier, ttl: ttl, initFn: initFn}
}

// ErrUninitialized is surfaced as Unavailable by the Pipeline when the
// source has not yet been (or could not be) initialized.
type ErrUninitialized struct {
	Cause error
}

func (e *ErrUninitialized) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scraper source unavailable: %v", e.Cause)
	}
	return "scraper source unavailable"
}

func (e *ErrUninitialized) Unwrap() error { return e.Cause }

func (c *Cache) getSource() (Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initDone && c.initErr == nil {
		return c.source, nil
	}
	// A prior failure is retried on next use rather than cached forever
	// (spec §9: "treat initialization failure as Unavailable, not fatal").
	src, err := c.initFn()
	if err != nil {
		c.initErr = err
		c.initDone = true
		return nil, &ErrUninitialized{Cause: err}
	}
	c.source = src
	c.initErr = nil
	c.initDone = true
	return src, nil
}

// Get returns the cached record for the given triple, if one exists
// regardless of freshness; the caller decides what to do with a stale hit.
func (c *Cache) Get(ctx context.Context, episodeID string, category Category, server string) (*Record, bool) {
	key := CompositeKey(episodeID, category, server)
	data, ok := c.tier.GetSource(ctx, key, c.ttl)
	if !ok {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// Upsert stores rec under its composite key.
func (c *Cache) Upsert(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal scraper record: %w", err)
	}
	c.tier.SetSource(ctx, rec.CompositeKey, data, c.ttl)
	if c.durable != nil {
		if err := c.durable.Upsert(ctx, rec); err != nil {
			log.Error().Err(err).Str("key", rec.CompositeKey).Msg("durable scraper store write failed")
		}
	}
	return nil
}

// Resolve implements the get-or-discover flow: a fresh cached record
// short-circuits origin discovery; a stale or missing record triggers
// discovery. A discovery failure on a stale record serves the stale record
// back with Stale=true rather than propagating the error (spec §4.H).
func (c *Cache) Resolve(ctx context.Context, episodeID string, category Category, server string) (rec *Record, fromCache bool, stale bool, err error) {
	key := CompositeKey(episodeID, category, server)
	now := time.Now()

	cached, hit := c.Get(ctx, episodeID, category, server)
	if hit && cached.fresh(now) {
		return cached, true, false, nil
	}

	src, srcErr := c.getSource()
	if srcErr != nil {
		if hit {
			return cached, true, true, nil
		}
		if durableRec := c.getDurable(ctx, key); durableRec != nil {
			return durableRec, true, true, nil
		}
		return nil, false, false, srcErr
	}

	payload, discErr := src.Discover(ctx, episodeID, category, server)
	if discErr != nil {
		if hit {
			return cached, true, true, nil
		}
		if durableRec := c.getDurable(ctx, key); durableRec != nil {
			return durableRec, true, true, nil
		}
		return nil, false, false, fmt.Errorf("scrape %s: %w", key, discErr)
	}

	fresh := &Record{
		CompositeKey: key,
		EpisodeID:    episodeID,
		Category:     category,
		Server:       server,
		Payload:      payload,
		FetchedAt:    now,
	}
	if err := c.Upsert(ctx, fresh); err != nil {
		// Cache failures are logged by the caller and swallowed here; the
		// freshly discovered record is still returned to this request.
		return fresh, false, false, nil
	}
	return fresh, false, false, nil
}

// getDurable checks the Postgres backstop, returning nil if unset, unset
// entry, or on error (the caller's own classification takes precedence over
// a durable-store read failure).
func (c *Cache) getDurable(ctx context.Context, key string) *Record {
	if c.durable == nil {
		return nil
	}
	rec, err := c.durable.Get(ctx, key)
	if err != nil || rec == nil {
		return nil
	}
	return rec
}

// Prewarm schedules background discovery for each (episodeID, category,
// server) triple that is missing or stale, deduplicating overlapping
// in-flight requests by compositeKey (spec §4.G "Pre-warm endpoint"). It
// returns immediately with the number of IDs scheduled; each lookup runs
// Resolve in its own goroutine.
func (c *Cache) Prewarm(ctx context.Context, episodeIDs []string, category Category, server string) int {
	count := 0
	for _, id := range episodeIDs {
		key := CompositeKey(id, category, server)
		count++
		episodeID, cat, srv := id, category, server
		go func() {
			c.prewarm.Do(key, func() (interface{}, error) {
				_, _, _, err := c.Resolve(context.Background(), episodeID, cat, srv)
				return nil, err
			})
		}()
	}
	return count
}
