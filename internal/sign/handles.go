package sign

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is the record stored in the handle table (spec §3 "Segment Handle").
type Handle struct {
	ID        string
	OriginURL string
	Referer   string
	Expiry    time.Time
}

func (h *Handle) isExpired() bool {
	return time.Now().After(h.Expiry)
}

// HandleTable is a bounded, LRU-with-TTL store of signed handles, grounded on
// the eviction-list shape of the LunaTV proxy's LRUCache (other_examples) and
// the janitor-goroutine cleanup of ManuGH-xg2g's internal/cache.
type HandleTable struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List

	stop chan struct{}
	once sync.Once
}

// NewHandleTable creates a handle table capped at capacity entries, each
// living for ttl, with a background janitor that sweeps expired entries.
func NewHandleTable(capacity int, ttl time.Duration) *HandleTable {
	t := &HandleTable{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		stop:     make(chan struct{}),
	}
	go t.janitor()
	return t
}

// Put allocates a new handle ID for (originURL, referer) and stores it.
func (t *HandleTable) Put(originURL, referer string) *Handle {
	h := &Handle{
		ID:        uuid.NewString(),
		OriginURL: originURL,
		Referer:   referer,
		Expiry:    time.Now().Add(t.ttl),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	el := t.order.PushFront(h)
	t.items[h.ID] = el
	t.evictLocked()
	return h
}

// Get returns the handle for id, or ok=false if absent or expired.
func (t *HandleTable) Get(id string) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.items[id]
	if !ok {
		return nil, false
	}
	h := el.Value.(*Handle)
	if h.isExpired() {
		t.removeLocked(el)
		return nil, false
	}
	t.order.MoveToFront(el)
	return h, true
}

// Close stops the background janitor.
func (t *HandleTable) Close() {
	t.once.Do(func() { close(t.stop) })
}

func (t *HandleTable) evictLocked() {
	for t.order.Len() > t.capacity {
		t.removeLocked(t.order.Back())
	}
}

func (t *HandleTable) removeLocked(el *list.Element) {
	h := el.Value.(*Handle)
	t.order.Remove(el)
	delete(t.items, h.ID)
}

func (t *HandleTable) janitor() {
	interval := t.ttl
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *HandleTable) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var next *list.Element
	for el := t.order.Back(); el != nil; el = next {
		next = el.Prev()
		h := el.Value.(*Handle)
		if h.isExpired() {
			t.removeLocked(el)
		}
	}
}
