package perf

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/TobiSchelling/AIMindset/internal/article"
	"github.com/TobiSchelling/AIMindset/internal/lru"
	"github.com/TobiSchelling/AIMindset/internal/metrics"
	"github.com/TobiSchelling/AIMindset/internal/processor"
	"github.com/TobiSchelling/AIMindset/internal/store"
)

func testArticles() []article.Article {
	return []article.Article{
		{ID: "1", Title: "Agentes en producción", Category: "IA", Content: "Agentes que operan solos.", Tags: []string{"agents"}, Published: true, CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "2", Title: "Ética de datos", Category: "Ética", Content: "Privacidad y sesgo en los datos.", Tags: []string{"ethics"}, Published: true, CreatedAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "3", Title: "Borrador", Category: "IA", Content: "Notas sobre agentes.", Published: false, CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
}

type harness struct {
	facade  *Facade
	queue   *processor.Queue
	cache   *lru.Cache
	store   *store.Store
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, withQueue bool) *harness {
	t.Helper()
	h := &harness{
		cache:   lru.New(10, time.Hour),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	h.store = s

	if withQueue {
		h.queue = processor.NewQueue(processor.WithRecorder(h.metrics))
		h.queue.Start(context.Background())
		t.Cleanup(h.queue.Close)
	}

	h.facade = NewFacade(Deps{
		Queue:    h.queue,
		LRU:      h.cache,
		Store:    h.store,
		Metrics:  h.metrics,
		Debounce: 20 * time.Millisecond,
	})
	t.Cleanup(h.facade.Close)
	return h
}

func TestFacadeSearchRecordsSample(t *testing.T) {
	h := newHarness(t, true)
	results, err := h.facade.Search(context.Background(), testArticles(), "agentes", processor.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Article.ID != "1" {
		t.Errorf("unexpected results %+v", results)
	}
	if h.facade.Report().AverageSearch <= 0 {
		t.Error("expected a search sample")
	}

	// Second identical search is served by the durable store.
	again, err := h.facade.Search(context.Background(), testArticles(), "agentes", processor.SearchOptions{})
	if err != nil || len(again) != 2 {
		t.Fatalf("second Search: %v %v", again, err)
	}
	if got := testutil.ToFloat64(h.metrics.CacheRequests.WithLabelValues(metrics.LayerStore, "hit")); got != 1 {
		t.Errorf("expected 1 store hit, got %v", got)
	}
}

func TestFacadeCachedResultsFollowCollection(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	first := []article.Article{{ID: "a", Title: "Agentes autonomos", Category: "IA", Published: true}}
	second := []article.Article{{ID: "b", Title: "Robots industriales", Category: "IA", Published: true}}

	if got, err := h.facade.Search(ctx, first, "agentes", processor.SearchOptions{}); err != nil || len(got) != 1 {
		t.Fatalf("Search over first collection: %v %v", got, err)
	}
	got, err := h.facade.Search(ctx, second, "agentes", processor.SearchOptions{})
	if err != nil {
		t.Fatalf("Search over second collection: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results from second collection, got %+v", got)
	}

	opts := processor.FilterOptions{Category: "ia"}
	if out, err := h.facade.Filter(ctx, first, opts); err != nil || len(out) != 1 || out[0].ID != "a" {
		t.Fatalf("Filter over first collection: %v %v", out, err)
	}
	out, err := h.facade.Filter(ctx, second, opts)
	if err != nil {
		t.Fatalf("Filter over second collection: %v", err)
	}
	if len(out) != 1 || out[0].ID != "b" {
		t.Errorf("expected article b, got %+v", out)
	}

	// An edited article changes the fingerprint too.
	edited := []article.Article{first[0]}
	edited[0].Title = "Robots"
	edited[0].UpdatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if got, err := h.facade.Search(ctx, edited, "agentes", processor.SearchOptions{}); err != nil || len(got) != 0 {
		t.Errorf("expected edited collection to miss the cache, got %+v %v", got, err)
	}
}

func TestFacadeInlineWithoutQueue(t *testing.T) {
	withQueue := newHarness(t, true)
	inline := newHarness(t, false)
	published := true
	opts := processor.FilterOptions{Category: "ia", Published: &published}

	a, err := withQueue.facade.Filter(context.Background(), testArticles(), opts)
	if err != nil {
		t.Fatalf("queued Filter: %v", err)
	}
	b, err := inline.facade.Filter(context.Background(), testArticles(), opts)
	if err != nil {
		t.Fatalf("inline Filter: %v", err)
	}
	if len(a) != 1 || len(b) != 1 || a[0].ID != b[0].ID {
		t.Errorf("expected identical results, got %v and %v", a, b)
	}
}

func TestFacadeFallsBackWhenQueueClosed(t *testing.T) {
	h := newHarness(t, true)
	h.queue.Close()

	an, err := h.facade.Analyze(context.Background(), testArticles())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if an.Total != 3 || an.Categories["IA"] != 2 {
		t.Errorf("unexpected analysis %+v", an)
	}
}

func TestFacadeTaskError(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.facade.Sort(context.Background(), testArticles(), "views", "desc", nil)
	var te *processor.TaskError
	if !errors.As(err, &te) {
		t.Errorf("expected TaskError, got %v", err)
	}

	sorted, err := h.facade.Sort(context.Background(), testArticles(), processor.SortByDate, processor.Ascending, nil)
	if err != nil || sorted[0].ID != "1" {
		t.Errorf("unexpected sort %v %v", sorted, err)
	}
}

func TestFacadeSummarize(t *testing.T) {
	h := newHarness(t, false)
	a := article.Article{ID: "x", Content: "Los agentes autónomos ya trabajan en producción con excelente resultado."}
	s, err := h.facade.Summarize(context.Background(), a)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.ArticleID != "x" || s.Sentiment != processor.Positive || s.Summary == "" {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestGetArticleLayers(t *testing.T) {
	h := newHarness(t, false)
	loads := 0
	loader := func(id string) (*article.Article, error) {
		loads++
		a, ok := article.ByID(testArticles(), id)
		if !ok {
			return nil, nil
		}
		return &a, nil
	}

	a, err := h.facade.GetArticle("2", loader)
	if err != nil || a == nil || a.Title != "Ética de datos" {
		t.Fatalf("first GetArticle: %+v %v", a, err)
	}
	if loads != 1 {
		t.Errorf("expected loader call on cold caches, got %d", loads)
	}

	if _, err := h.facade.GetArticle("2", loader); err != nil || loads != 1 {
		t.Errorf("expected LRU hit, loads=%d err=%v", loads, err)
	}

	// Drop the LRU copy; the durable store still serves it and re-promotes.
	h.cache.Clear()
	if _, err := h.facade.GetArticle("2", loader); err != nil || loads != 1 {
		t.Errorf("expected store hit, loads=%d err=%v", loads, err)
	}
	if !h.cache.Has("2") {
		t.Error("expected store hit to promote into the LRU")
	}

	missing, err := h.facade.GetArticle("nope", loader)
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown article, got %+v %v", missing, err)
	}

	_, err = h.facade.GetArticle("boom", func(string) (*article.Article, error) { return nil, errors.New("backend down") })
	if err == nil {
		t.Error("expected loader error to propagate")
	}
}

func TestGetArticleStoreErrorIsMiss(t *testing.T) {
	// The data directory cannot be created under /dev/null, so every
	// store operation fails.
	f := NewFacade(Deps{LRU: lru.New(5, time.Hour), Store: store.New("/dev/null/cache.db")})
	a, err := f.GetArticle("1", func(id string) (*article.Article, error) {
		return &article.Article{ID: id, Title: "from source"}, nil
	})
	if err != nil || a == nil || a.Title != "from source" {
		t.Errorf("expected fallback to loader, got %+v %v", a, err)
	}
}

func TestCacheArticles(t *testing.T) {
	h := newHarness(t, false)
	h.store.CacheSearchResults("stale", []string{"x"})

	if err := h.facade.CacheArticles(testArticles()); err != nil {
		t.Fatalf("CacheArticles: %v", err)
	}
	list, _ := h.store.GetArticles()
	if len(list) != 3 {
		t.Errorf("expected 3 cached articles, got %d", len(list))
	}
	if a, _ := h.store.GetArticle("3"); a == nil {
		t.Error("expected individual article cached")
	}
	cats, _ := h.store.GetCategories()
	if len(cats) != 2 {
		t.Errorf("expected 2 categories, got %v", cats)
	}
	if ok, _ := h.store.GetSearchResults("stale", nil); ok {
		t.Error("expected search results invalidated")
	}
	if h.cache.Len() != 3 {
		t.Errorf("expected LRU preloaded, got %d", h.cache.Len())
	}
}

func TestDebouncedSearchDeliversLatestOnly(t *testing.T) {
	h := newHarness(t, true)

	var (
		mu      sync.Mutex
		queries []int
	)
	done := make(chan struct{}, 3)
	for i, q := range []string{"age", "agen", "agentes"} {
		i := i
		h.facade.DebouncedSearch(testArticles(), q, processor.SearchOptions{}, func(r []processor.SearchResult, err error) {
			mu.Lock()
			queries = append(queries, i)
			mu.Unlock()
			done <- struct{}{}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced search never completed")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 1 || queries[0] != 2 {
		t.Errorf("expected only the last query to deliver, got %v", queries)
	}
}

func TestScrollThrottled(t *testing.T) {
	h := newHarness(t, false)
	ran := 0
	for i := 0; i < 5; i++ {
		h.facade.Scroll(func() { ran++ })
	}
	if ran != 1 {
		t.Errorf("expected 1 scroll handler run, got %d", ran)
	}
	h.facade.RecordRender(5 * time.Millisecond)
	r := h.facade.Report()
	if r.AverageRender != 5*time.Millisecond {
		t.Errorf("expected render sample, got %v", r.AverageRender)
	}
}
