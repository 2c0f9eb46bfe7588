package application

import (
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/example/gymdesk-client/internal/api"
)

const (
	viewResources    = "resources"
	viewTimeSlots    = "timeslots"
	viewReservations = "reservations"
)

// ViewCache keeps recently loaded resource, slot and reservation lists so
// repeated reads within the TTL skip the network. Entries are invalidated,
// never patched, after a mutation.
type ViewCache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	entries    *lru.Cache[string, viewEntry]
	generation uint64
}

type viewEntry struct {
	value     any
	expiresAt time.Time
}

// NewViewCache returns a cache holding at most size entries for ttl each.
func NewViewCache(size int, ttl time.Duration, now func() time.Time) *ViewCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if size <= 0 {
		size = 256
	}
	if now == nil {
		now = time.Now
	}
	entries, err := lru.New[string, viewEntry](size)
	if err != nil {
		panic(err)
	}
	return &ViewCache{now: now, ttl: ttl, entries: entries}
}

// Get returns the cached value for key when present and fresh.
func (c *ViewCache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Generation identifies the current invalidation epoch. A value loaded during
// one epoch is only stored if no invalidation happened meanwhile.
func (c *ViewCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Store records value under key unless the cache was invalidated after generation.
func (c *ViewCache) Store(key string, value any, generation uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return false
	}
	c.entries.Add(key, viewEntry{value: value, expiresAt: c.now().Add(c.ttl)})
	return true
}

// Invalidate drops every entry whose key starts with one of prefixes. Without
// prefixes the whole cache is purged.
func (c *ViewCache) Invalidate(prefixes ...string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if len(prefixes) == 0 {
		c.entries.Purge()
		return
	}
	for _, key := range c.entries.Keys() {
		for _, prefix := range prefixes {
			if strings.HasPrefix(key, prefix) {
				c.entries.Remove(key)
				break
			}
		}
	}
}

// Len reports the number of cached entries, including expired ones not yet evicted.
func (c *ViewCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func resourcesKey(kind api.ResourceKind) string {
	return viewResources + "|" + string(kind)
}

func timeSlotsKey(q api.TimeSlotQuery) string {
	var date string
	if !q.Date.IsZero() {
		date = q.Date.Format("2006-01-02")
	}
	return viewTimeSlots + "|" + strconv.FormatInt(q.ResourceID, 10) + "|" + date
}

func reservationsKey(status api.ReservationStatus) string {
	return viewReservations + "|" + string(status)
}

// timeSlotPrefixes selects the slot views that may contain slots of
// resourceID: those filtered by it and those filtered by date only. A zero
// resourceID selects every slot view.
func timeSlotPrefixes(resourceID int64) []string {
	if resourceID <= 0 {
		return []string{viewTimeSlots + "|"}
	}
	return []string{
		viewTimeSlots + "|" + strconv.FormatInt(resourceID, 10) + "|",
		viewTimeSlots + "|0|",
	}
}

func cloneSlice[T any](items []T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
