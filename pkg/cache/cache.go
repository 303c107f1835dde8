package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ComputeFunc produces a value for a fingerprint on a cache miss.
type ComputeFunc func(ctx context.Context) (interface{}, error)

// entry holds one cached value. A pending entry (done not yet closed) marks an
// in-flight computation that concurrent requesters for the same fingerprint
// must wait on instead of issuing a duplicate external call.
type entry struct {
	value     interface{}
	err       error
	createdAt time.Time
	expiresAt time.Time
	done      chan struct{}
}

func (e *entry) pending() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Stats describes the cache population at a point in time.
type Stats struct {
	TotalEntries   int `json:"total_entries"`
	ActiveEntries  int `json:"active_entries"`
	ExpiredEntries int `json:"expired_entries"`
	Hits           int `json:"hits"`
	Misses         int `json:"misses"`
}

// Cache is an in-memory TTL cache for tool-call responses keyed by request
// fingerprint. Expiry is checked lazily at read time; expired entries behave
// as absent and are eligible for overwrite.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	hits    int
	misses  int
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
	}
}

// Get returns the live value stored for a fingerprint. Pending and expired
// entries are treated as absent.
func (c *Cache) Get(fingerprint string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok || e.pending() {
		c.misses++
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.entries, fingerprint)
		c.misses++
		return nil, false
	}

	c.hits++
	return e.value, true
}

// Put stores a value for a fingerprint, replacing any previous entry.
func (c *Cache) Put(fingerprint string, value interface{}, ttl time.Duration) {
	now := time.Now()
	done := make(chan struct{})
	close(done)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = &entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
		done:      done,
	}
}

// Do returns the cached value for a fingerprint, computing and storing it on a
// miss. A concurrent Do for the same fingerprint awaits the first caller's
// in-flight result rather than invoking fn again. The second return value
// reports whether the result was served from an already-stored entry.
//
// Errors from fn are propagated to all waiters and are not cached.
func (c *Cache) Do(ctx context.Context, fingerprint string, ttl time.Duration, fn ComputeFunc) (interface{}, bool, error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[fingerprint]
		if ok && !e.pending() && e.expired(time.Now()) {
			delete(c.entries, fingerprint)
			ok = false
		}
		if !ok {
			e = &entry{done: make(chan struct{})}
			c.entries[fingerprint] = e
			c.misses++
			c.mu.Unlock()

			value, err := fn(ctx)

			c.mu.Lock()
			if err != nil {
				e.err = err
				delete(c.entries, fingerprint)
			} else {
				now := time.Now()
				e.value = value
				e.createdAt = now
				e.expiresAt = now.Add(ttl)
			}
			close(e.done)
			c.mu.Unlock()

			return value, false, err
		}

		if !e.pending() {
			c.hits++
			c.mu.Unlock()
			return e.value, true, nil
		}
		c.mu.Unlock()

		log.Debug().Str("fingerprint", fingerprint).Msg("Awaiting in-flight cache computation")

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-e.done:
		}

		if e.err != nil {
			return nil, false, e.err
		}
		// The first caller may have finished just before its entry expired.
		// Re-check rather than serving a stale value.
		c.mu.Lock()
		expired := e.expired(time.Now())
		if !expired {
			c.hits++
		}
		c.mu.Unlock()
		if expired {
			continue
		}
		return e.value, true, nil
	}
}

// Invalidate removes a fingerprint from the cache.
func (c *Cache) Invalidate(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[fingerprint]
	if ok {
		delete(c.entries, fingerprint)
	}
	return ok
}

// Clear removes all entries and returns how many were dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := len(c.entries)
	c.entries = make(map[string]*entry)
	return count
}

// Sweep removes all expired entries and returns how many were dropped.
// Callers are not required to sweep; expiry is also enforced lazily on read.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for fingerprint, e := range c.entries {
		if !e.pending() && e.expired(now) {
			delete(c.entries, fingerprint)
			removed++
		}
	}
	return removed
}

// Size returns the number of stored entries, expired ones included.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetStats returns a snapshot of cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0
	for _, e := range c.entries {
		if !e.pending() && e.expired(now) {
			expired++
		}
	}

	return Stats{
		TotalEntries:   len(c.entries),
		ActiveEntries:  len(c.entries) - expired,
		ExpiredEntries: expired,
		Hits:           c.hits,
		Misses:         c.misses,
	}
}
