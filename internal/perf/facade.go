package perf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/AIMindset/internal/article"
	"github.com/TobiSchelling/AIMindset/internal/lru"
	"github.com/TobiSchelling/AIMindset/internal/metrics"
	"github.com/TobiSchelling/AIMindset/internal/processor"
	"github.com/TobiSchelling/AIMindset/internal/store"
)

// Facade is the entry point UI-facing code uses. Every dependency except
// Monitor is optional: without a queue tasks run inline, without caches
// lookups go straight to the loader.
type Facade struct {
	queue   *processor.Queue
	cache   *lru.Cache
	store   *store.Store
	monitor *Monitor
	metrics *metrics.Metrics

	debouncer *Debouncer
	throttler *Throttler

	mu           sync.Mutex
	latestSearch string
}

// Deps are the collaborators a Facade is built from.
type Deps struct {
	Queue    *processor.Queue
	LRU      *lru.Cache
	Store    *store.Store
	Monitor  *Monitor
	Metrics  *metrics.Metrics
	Debounce time.Duration
	Throttle time.Duration
}

func NewFacade(d Deps) *Facade {
	if d.Monitor == nil {
		d.Monitor = NewMonitor(DefaultWindow, d.Metrics)
	}
	return &Facade{
		queue:     d.Queue,
		cache:     d.LRU,
		store:     d.Store,
		monitor:   d.Monitor,
		metrics:   d.Metrics,
		debouncer: NewDebouncer(d.Debounce),
		throttler: NewThrottler(d.Throttle),
	}
}

// Monitor returns the monitor samples are recorded on.
func (f *Facade) Monitor() *Monitor { return f.monitor }

// Report grades the samples recorded so far.
func (f *Facade) Report() Report { return f.monitor.Report() }

// RecordRender records how long a render of article data took.
func (f *Facade) RecordRender(d time.Duration) { f.monitor.RecordRender(d) }

// Close cancels a pending debounced search.
func (f *Facade) Close() {
	f.debouncer.Stop()
}

// run executes a task on the queue, or inline when the queue is missing,
// closed or too slow. Functional results are identical either way.
func (f *Facade) run(ctx context.Context, t processor.Task) (processor.Result, error) {
	if f.queue == nil {
		r := processor.Execute(t)
		return r, r.Err()
	}
	r, err := f.queue.Do(ctx, t)
	if errors.Is(err, processor.ErrTimeout) || errors.Is(err, processor.ErrQueueClosed) {
		log.Printf("Task %s (%s) unavailable on queue (%v), running inline", t.ID, t.Type, err)
		r = processor.Execute(t)
		return r, r.Err()
	}
	return r, err
}

func (f *Facade) do(ctx context.Context, typ processor.TaskType, priority processor.Priority, req, dst any) error {
	t, err := processor.NewTask("", typ, priority, req)
	if err != nil {
		return err
	}
	r, err := f.run(ctx, t)
	if err != nil {
		return err
	}
	f.metrics.CacheRequest(metrics.LayerQueue, r.FromCache)
	return processor.Decode(r, dst)
}

type searchKey struct {
	Query      string                  `json:"query"`
	Options    processor.SearchOptions `json:"options"`
	Collection string                  `json:"collection"`
}

type filterKey struct {
	Filters    processor.FilterOptions `json:"filters"`
	Collection string                  `json:"collection"`
}

// collectionKey fingerprints an article collection by id and update time,
// so cached results are only reused for the collection they came from.
func collectionKey(articles []article.Article) string {
	var b strings.Builder
	for _, a := range articles {
		b.WriteString(a.ID)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(a.UpdatedAt.UnixNano(), 36))
		b.WriteByte(';')
	}
	return fmt.Sprintf("%d:%s", len(articles), store.Hash(b.String()))
}

// Search runs a search task and records its duration. Result sets are
// also kept in the durable store under the query and the collection.
func (f *Facade) Search(ctx context.Context, articles []article.Article, query string, opts processor.SearchOptions) ([]processor.SearchResult, error) {
	start := time.Now()
	defer func() { f.monitor.RecordSearch(time.Since(start)) }()

	key, err := json.Marshal(searchKey{Query: query, Options: opts, Collection: collectionKey(articles)})
	if err != nil {
		return nil, err
	}

	var results []processor.SearchResult
	if f.store != nil {
		ok, err := f.store.GetSearchResults(string(key), &results)
		if err != nil {
			log.Printf("Search cache read failed: %v", err)
		}
		f.cacheLookup(metrics.LayerStore, ok)
		if ok {
			return results, nil
		}
	}

	req := processor.SearchRequest{Articles: articles, Query: query, Options: opts}
	if err := f.do(ctx, processor.Search, processor.High, req, &results); err != nil {
		return nil, err
	}

	if f.store != nil {
		if err := f.store.CacheSearchResults(string(key), results, store.WithTTL(time.Hour)); err != nil {
			log.Printf("Search cache write failed: %v", err)
		}
	}
	return results, nil
}

// DebouncedSearch schedules a search that runs once input has been quiet
// for the debounce window. Only the most recent request's callback fires;
// results of superseded searches are dropped. It returns the request id.
func (f *Facade) DebouncedSearch(articles []article.Article, query string, opts processor.SearchOptions, callback func([]processor.SearchResult, error)) string {
	id := uuid.NewString()
	f.mu.Lock()
	f.latestSearch = id
	f.mu.Unlock()

	f.debouncer.Call(func() {
		results, err := f.Search(context.Background(), articles, query, opts)
		if !f.isLatest(id) {
			return
		}
		callback(results, err)
	})
	return id
}

func (f *Facade) isLatest(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestSearch == id
}

// Filter runs a filter task. Filter result sets are cached by filter and
// collection.
func (f *Facade) Filter(ctx context.Context, articles []article.Article, opts processor.FilterOptions) ([]article.Article, error) {
	var out []article.Article
	key := filterKey{Filters: opts, Collection: collectionKey(articles)}
	if f.store != nil {
		ok, err := f.store.GetFilterResults(key, &out)
		if err != nil {
			log.Printf("Filter cache read failed: %v", err)
		}
		f.cacheLookup(metrics.LayerStore, ok)
		if ok {
			return out, nil
		}
	}

	req := processor.FilterRequest{Articles: articles, Filters: opts}
	if err := f.do(ctx, processor.Filter, processor.Medium, req, &out); err != nil {
		return nil, err
	}

	if f.store != nil {
		if err := f.store.CacheFilterResults(key, out, store.WithTTL(time.Hour)); err != nil {
			log.Printf("Filter cache write failed: %v", err)
		}
	}
	return out, nil
}

// Sort runs a sort task.
func (f *Facade) Sort(ctx context.Context, articles []article.Article, by, order string, scores map[string]float64) ([]article.Article, error) {
	var out []article.Article
	req := processor.SortRequest{Articles: articles, By: by, Order: order, Scores: scores}
	if err := f.do(ctx, processor.Sort, processor.Medium, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Analyze runs an analysis task at low priority.
func (f *Facade) Analyze(ctx context.Context, articles []article.Article) (*processor.Analysis, error) {
	var out processor.Analysis
	if err := f.do(ctx, processor.Analyze, processor.Low, processor.AnalyzeRequest{Articles: articles}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summarize runs a summary task for one article.
func (f *Facade) Summarize(ctx context.Context, a article.Article) (*processor.Summary, error) {
	var out processor.Summary
	if err := f.do(ctx, processor.GenerateSummary, processor.Low, processor.SummaryRequest{Article: a}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scroll runs fn unless another scroll event ran within the throttle
// interval, and samples how long fn took.
func (f *Facade) Scroll(fn func()) bool {
	if !f.throttler.Allow() {
		return false
	}
	start := time.Now()
	fn()
	f.monitor.RecordScroll(time.Since(start))
	return true
}

// Loader fetches an article from the source of truth. It returns nil when
// the article does not exist.
type Loader func(id string) (*article.Article, error)

// GetArticle looks an article up in the LRU, then the durable store, then
// the loader, promoting it into the faster layers on the way back. Store
// failures count as misses.
func (f *Facade) GetArticle(id string, load Loader) (*article.Article, error) {
	if f.cache != nil {
		a, ok := f.cache.Get(id)
		f.cacheLookup(metrics.LayerLRU, ok)
		if ok {
			return &a, nil
		}
	}

	if f.store != nil {
		a, err := f.store.GetArticle(id)
		if err != nil {
			log.Printf("Store read for article %s failed: %v", id, err)
		}
		f.cacheLookup(metrics.LayerStore, a != nil)
		if a != nil {
			if f.cache != nil {
				f.cache.Set(id, *a)
			}
			return a, nil
		}
	}

	if load == nil {
		return nil, nil
	}
	a, err := load(id)
	if err != nil {
		return nil, fmt.Errorf("loading article %s: %w", id, err)
	}
	if a == nil {
		return nil, nil
	}
	if f.cache != nil {
		f.cache.Set(id, *a)
	}
	if f.store != nil {
		if err := f.store.CacheArticle(*a); err != nil {
			log.Printf("Store write for article %s failed: %v", id, err)
		}
	}
	return a, nil
}

// CacheArticles writes the list, each article, and the category list as
// independent writes. Derived search and filter results are invalidated.
// A failed write does not stop the rest; all failures are returned joined.
func (f *Facade) CacheArticles(articles []article.Article) error {
	if f.cache != nil {
		f.cache.Preload(articles)
	}
	if f.store == nil {
		return nil
	}

	var errs []error
	if err := f.store.CacheArticles(articles); err != nil {
		errs = append(errs, err)
	}
	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		if err := f.store.CacheArticle(a); err != nil {
			errs = append(errs, err)
		}
	}
	if err := f.store.CacheCategories(article.Categories(articles)); err != nil {
		errs = append(errs, err)
	}
	for _, p := range []store.Partition{store.Searches, store.Filters} {
		if err := f.store.Clear(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Facade) cacheLookup(layer string, hit bool) {
	f.monitor.RecordCache(hit)
	f.metrics.CacheRequest(layer, hit)
}
