package lru

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func art(id string) article.Article {
	return article.Article{ID: id, Title: "Article " + id}
}

func TestEvictsLowestAccessCount(t *testing.T) {
	clock := newClock()
	c := New(2, time.Hour, WithClock(clock.Now))

	c.Set("A", art("A"))
	clock.Advance(time.Millisecond)
	c.Set("B", art("B"))
	clock.Advance(time.Millisecond)
	if _, ok := c.Get("A"); !ok {
		t.Fatal("expected hit for A")
	}
	clock.Advance(time.Millisecond)
	c.Set("C", art("C"))

	if c.Has("B") {
		t.Error("expected B to be evicted")
	}
	if !c.Has("A") || !c.Has("C") {
		t.Error("expected A and C to remain")
	}
	if c.Len() != 2 {
		t.Errorf("expected size 2, got %d", c.Len())
	}
}

func TestEvictionTieBreaksOnOldest(t *testing.T) {
	clock := newClock()
	c := New(2, time.Hour, WithClock(clock.Now))

	c.Set("old", art("old"))
	clock.Advance(time.Second)
	c.Set("new", art("new"))
	clock.Advance(time.Second)
	c.Set("third", art("third"))

	if c.Has("old") {
		t.Error("expected oldest slot to be evicted on a tie")
	}
	if !c.Has("new") {
		t.Error("expected newer slot to survive")
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	c := New(5, time.Hour)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%d", i)
		c.Set(key, art(key))
		if i%3 == 0 {
			c.Get(key)
		}
		if c.Len() > 5 {
			t.Fatalf("size %d exceeds max after %d inserts", c.Len(), i+1)
		}
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c := New(2, time.Hour)
	c.Set("A", art("A"))
	c.Set("B", art("B"))
	c.Set("A", article.Article{ID: "A", Title: "Updated"})

	if !c.Has("B") {
		t.Error("expected overwrite to keep B")
	}
	a, _ := c.Get("A")
	if a.Title != "Updated" {
		t.Errorf("expected updated title, got %q", a.Title)
	}
}

func TestGetExpired(t *testing.T) {
	clock := newClock()
	c := New(10, time.Minute, WithClock(clock.Now))
	c.Set("A", art("A"))

	clock.Advance(time.Minute)
	if _, ok := c.Get("A"); !ok {
		t.Fatal("expected hit exactly at ttl")
	}

	clock.Advance(time.Minute + time.Nanosecond)
	if _, ok := c.Get("A"); ok {
		t.Error("expected miss after ttl")
	}
	if c.Len() != 0 {
		t.Error("expected expired slot to be dropped")
	}
}

func TestHitRefreshesTimestamp(t *testing.T) {
	clock := newClock()
	c := New(10, time.Minute, WithClock(clock.Now))
	c.Set("A", art("A"))

	for i := 0; i < 3; i++ {
		clock.Advance(50 * time.Second)
		if _, ok := c.Get("A"); !ok {
			t.Fatalf("expected hit on access %d", i)
		}
	}
}

func TestDeleteClearStats(t *testing.T) {
	c := New(10, time.Hour)
	c.Set("A", art("A"))
	c.Set("B", art("B"))
	c.Get("A")
	c.Get("missing")

	st := c.Stats()
	if st.Size != 2 || st.MaxSize != 10 {
		t.Errorf("unexpected size stats %+v", st)
	}
	if st.HitRate != 50 {
		t.Errorf("expected 50%% hit rate, got %v", st.HitRate)
	}
	if st.MemoryUsage <= 0 {
		t.Error("expected positive memory estimate")
	}

	c.Delete("A")
	if c.Has("A") {
		t.Error("expected A deleted")
	}
	c.Clear()
	if c.Len() != 0 || c.Stats().HitRate != 0 {
		t.Error("expected clear to empty the cache and reset counters")
	}
}

func TestPreload(t *testing.T) {
	c := New(2, time.Hour)
	n := c.Preload([]article.Article{art("1"), {Title: "no id"}, art("2"), art("3")})
	if n != 2 {
		t.Errorf("expected 2 preloaded, got %d", n)
	}
	if !c.Has("1") || !c.Has("2") || c.Has("3") {
		t.Errorf("unexpected keys %v", c.Keys())
	}
}

func TestDefaults(t *testing.T) {
	c := New(0, 0)
	if c.Stats().MaxSize != DefaultMaxSize {
		t.Errorf("expected default max size, got %d", c.Stats().MaxSize)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(20, time.Hour)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("%d-%d", g, i%30)
				c.Set(key, art(key))
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 20 {
		t.Errorf("size %d exceeds max", c.Len())
	}
}
