// Package lru holds recently used articles in memory for the current
// process. Eviction is frequency biased: the slot with the fewest accesses
// goes first, and the least recently touched one among equals.
package lru

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

const (
	DefaultMaxSize = 100
	DefaultTTL     = 30 * time.Minute
)

type slot struct {
	article     article.Article
	timestamp   time.Time
	accessCount int
}

// Cache is a bounded article cache safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	slots   map[string]*slot
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most maxSize articles for ttl each.
// Non-positive values fall back to the defaults.
func New(maxSize int, ttl time.Duration, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		slots:   make(map[string]*slot, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set inserts or replaces the article at key. Inserting a new key into a
// full cache evicts one slot first.
func (c *Cache) Set(key string, a article.Article) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if s, ok := c.slots[key]; ok {
		s.article = a
		s.timestamp = now
		return
	}
	if len(c.slots) >= c.maxSize {
		c.evictLocked()
	}
	c.slots[key] = &slot{article: a, timestamp: now, accessCount: 1}
}

// Get returns the article at key. Absent and expired slots are misses; a
// hit refreshes the slot's timestamp and bumps its access count.
func (c *Cache) Get(key string) (article.Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		c.misses++
		return article.Article{}, false
	}
	now := c.now()
	if now.Sub(s.timestamp) > c.ttl {
		delete(c.slots, key)
		c.misses++
		return article.Article{}, false
	}

	s.timestamp = now
	s.accessCount++
	c.hits++
	return s.article, true
}

// Has reports whether a live slot exists at key without touching it.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	return ok && c.now().Sub(s.timestamp) <= c.ttl
}

// Delete removes the slot at key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.slots, key)
	c.mu.Unlock()
}

// Clear drops every slot and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.slots = make(map[string]*slot, c.maxSize)
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
}

// Len returns the number of slots, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Keys returns the keys currently held.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.slots))
	for k := range c.slots {
		keys = append(keys, k)
	}
	return keys
}

// Preload stores articles under their ids until the cache is full.
// It returns how many were stored.
func (c *Cache) Preload(articles []article.Article) int {
	n := 0
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		if c.Len() >= c.maxSize && !c.Has(a.ID) {
			break
		}
		c.Set(a.ID, a)
		n++
	}
	return n
}

func (c *Cache) evictLocked() {
	var (
		victim string
		worst  *slot
	)
	for k, s := range c.slots {
		if worst == nil ||
			s.accessCount < worst.accessCount ||
			(s.accessCount == worst.accessCount && s.timestamp.Before(worst.timestamp)) {
			victim, worst = k, s
		}
	}
	if worst != nil {
		delete(c.slots, victim)
	}
}

// Stats describes the cache. HitRate is a percentage; MemoryUsage is an
// estimate from the JSON size of the held articles.
type Stats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	HitRate     float64 `json:"hit_rate"`
	MemoryUsage int64   `json:"memory_usage"`
}

// Stats returns a snapshot of the cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{Size: len(c.slots), MaxSize: c.maxSize}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = float64(c.hits) * 100 / float64(total)
	}
	for k, s := range c.slots {
		b, err := json.Marshal(s.article)
		if err != nil {
			continue
		}
		st.MemoryUsage += int64(len(b) + len(k))
	}
	return st
}
