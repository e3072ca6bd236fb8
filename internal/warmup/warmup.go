// Package warmup loads article sources and populates the caches from them.
package warmup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/AIMindset/internal/article"
	"github.com/TobiSchelling/AIMindset/internal/config"
	"github.com/TobiSchelling/AIMindset/internal/lru"
	"github.com/TobiSchelling/AIMindset/internal/store"
)

// LastCleanupKey is the metadata entry holding the last sweep time.
const LastCleanupKey = "last_cleanup"

// StepResult holds the result of a single warm-up step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full warm-up run.
type Result struct {
	Articles []article.Article
	Steps    []StepResult
}

// Source produces the current article collection.
type Source interface {
	Load() ([]article.Article, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ([]article.Article, error)

func (f SourceFunc) Load() ([]article.Article, error) { return f() }

// Warmer populates the durable store and the LRU from a source. Every
// write is independent; a failed step is reported and the run continues.
type Warmer struct {
	source Source
	store  *store.Store
	cache  *lru.Cache
	now    func() time.Time
}

// New creates a warmer. cache may be nil.
func New(source Source, st *store.Store, cache *lru.Cache) *Warmer {
	return &Warmer{source: source, store: st, cache: cache, now: time.Now}
}

// ConfigSource loads the articles file and feeds named in cfg.
func ConfigSource(cfg *config.Config) Source {
	return SourceFunc(func() ([]article.Article, error) {
		var all []article.Article
		if path := cfg.Sources.ArticlesFile; path != "" {
			articles, err := article.LoadFile(path)
			if err != nil {
				return nil, err
			}
			all = append(all, articles...)
		}

		if len(cfg.Sources.Feeds) > 0 {
			feeds := make([]article.FeedConfig, len(cfg.Sources.Feeds))
			for i, f := range cfg.Sources.Feeds {
				feeds[i] = article.FeedConfig{URL: f.URL, Name: f.Name}
			}
			fl := article.NewFeedLoader(feeds, cfg.Sources.FetchContent, cfg.Sources.FetchTimeoutDuration())
			all = append(all, fl.LoadAll()...)
		}
		return dedupe(all), nil
	})
}

func dedupe(articles []article.Article) []article.Article {
	seen := make(map[string]bool, len(articles))
	out := make([]article.Article, 0, len(articles))
	for _, a := range articles {
		if a.ID != "" && seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}

// Run executes every warm-up step.
func (w *Warmer) Run() *Result {
	r := &Result{}

	// Step 1: Load
	articles, step := w.runLoad()
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}
	r.Articles = articles

	r.Steps = append(r.Steps, w.runCacheList(articles))
	r.Steps = append(r.Steps, w.runCacheEach(articles))
	r.Steps = append(r.Steps, w.runCacheCategories(articles))
	r.Steps = append(r.Steps, w.runInvalidate())
	r.Steps = append(r.Steps, w.runCleanup())
	return r
}

// DryRun reports what Run would do without writing anything.
func (w *Warmer) DryRun() *Result {
	r := &Result{}
	articles, step := w.runLoad()
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}
	r.Articles = articles

	st, err := w.store.Stats()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Cache", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Cache",
		Summary: fmt.Sprintf("[dry-run] Would cache %d articles in %d categories (%d entries cached now)", len(articles), len(article.Categories(articles)), st.TotalEntries),
	})
	return r
}

func (w *Warmer) runLoad() ([]article.Article, StepResult) {
	log.Println("Step 1/6: Loading articles...")
	articles, err := w.source.Load()
	if err != nil {
		return nil, StepResult{Name: "Load", Err: err}
	}
	return articles, StepResult{
		Name:    "Load",
		Summary: fmt.Sprintf("Loaded %d articles", len(articles)),
	}
}

func (w *Warmer) runCacheList(articles []article.Article) StepResult {
	log.Println("Step 2/6: Caching article list...")
	if err := w.store.CacheArticles(articles); err != nil {
		return StepResult{Name: "Cache list", Err: err}
	}
	return StepResult{Name: "Cache list", Summary: fmt.Sprintf("Cached list of %d articles", len(articles))}
}

func (w *Warmer) runCacheEach(articles []article.Article) StepResult {
	log.Println("Step 3/6: Caching individual articles...")
	cached, failed := 0, 0
	var firstErr error
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		if err := w.store.CacheArticle(a); err != nil {
			log.Printf("Caching article %s: %v", a.ID, err)
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		cached++
	}
	preloaded := 0
	if w.cache != nil {
		preloaded = w.cache.Preload(articles)
	}
	if cached == 0 && firstErr != nil {
		return StepResult{Name: "Cache articles", Err: firstErr}
	}
	return StepResult{
		Name:    "Cache articles",
		Summary: fmt.Sprintf("Cached %d articles, %d failed, %d preloaded in memory", cached, failed, preloaded),
	}
}

func (w *Warmer) runCacheCategories(articles []article.Article) StepResult {
	log.Println("Step 4/6: Caching categories...")
	categories := article.Categories(articles)
	if err := w.store.CacheCategories(categories); err != nil {
		return StepResult{Name: "Categories", Err: err}
	}
	return StepResult{Name: "Categories", Summary: fmt.Sprintf("Cached %d categories", len(categories))}
}

func (w *Warmer) runInvalidate() StepResult {
	log.Println("Step 5/6: Invalidating derived results...")
	for _, p := range []store.Partition{store.Searches, store.Filters} {
		if err := w.store.Clear(p); err != nil {
			return StepResult{Name: "Invalidate", Err: err}
		}
	}
	return StepResult{Name: "Invalidate", Summary: "Cleared cached searches and filters"}
}

func (w *Warmer) runCleanup() StepResult {
	log.Println("Step 6/6: Removing expired entries...")
	n, err := Cleanup(w.store, w.now())
	if err != nil {
		return StepResult{Name: "Cleanup", Err: err}
	}
	return StepResult{Name: "Cleanup", Summary: fmt.Sprintf("Removed %d expired entries", n)}
}

// Cleanup sweeps expired entries and records when it ran.
func Cleanup(st *store.Store, now time.Time) (int, error) {
	n, err := st.CleanupExpired()
	if err != nil {
		return 0, err
	}
	if err := st.SetMeta(LastCleanupKey, now.UTC().Format(time.RFC3339)); err != nil {
		return n, fmt.Errorf("recording cleanup time: %w", err)
	}
	return n, nil
}

// LastCleanup returns when Cleanup last ran, or the zero time.
func LastCleanup(st *store.Store) (time.Time, error) {
	var s string
	ok, err := st.GetMeta(LastCleanupKey, &s)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

// CleanupLoop sweeps the store every interval until ctx is done.
func CleanupLoop(ctx context.Context, st *store.Store, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			n, err := Cleanup(st, t)
			if err != nil {
				log.Printf("Cache cleanup failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Cache cleanup removed %d expired entries", n)
			}
		}
	}
}

// Articles returns the cached article list, loading and caching it from
// the source on a miss. A cache failure falls back to the source.
func (w *Warmer) Articles() ([]article.Article, error) {
	articles, err := w.store.GetArticles()
	if err != nil {
		log.Printf("Reading cached articles: %v", err)
	}
	if articles != nil {
		return articles, nil
	}

	articles, err = w.source.Load()
	if err != nil {
		return nil, err
	}
	if err := w.store.CacheArticles(articles); err != nil {
		log.Printf("Caching articles: %v", err)
	}
	return articles, nil
}
