// Package perf measures the article layer and fronts it with debounced and
// throttled entry points.
package perf

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/TobiSchelling/AIMindset/internal/metrics"
)

const DefaultWindow = 100

// Thresholds above which a sample average costs points in the report.
const (
	RenderBudget = 100 * time.Millisecond
	ScrollBudget = 16 * time.Millisecond
	SearchBudget = 200 * time.Millisecond
	MinHitRate   = 80.0
)

// window keeps the most recent n samples.
type window struct {
	samples []time.Duration
	next    int
	full    bool
}

func newWindow(n int) *window {
	return &window{samples: make([]time.Duration, n)}
}

func (w *window) add(d time.Duration) {
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *window) len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

func (w *window) average() time.Duration {
	n := w.len()
	if n == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range w.samples[:n] {
		total += d
	}
	return total / time.Duration(n)
}

// Monitor aggregates timing samples over a rolling window.
type Monitor struct {
	mu      sync.Mutex
	render  *window
	scroll  *window
	search  *window
	hits    int64
	misses  int64
	metrics *metrics.Metrics
}

// NewMonitor keeps the last size samples of each kind. m may be nil.
func NewMonitor(size int, m *metrics.Metrics) *Monitor {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Monitor{
		render:  newWindow(size),
		scroll:  newWindow(size),
		search:  newWindow(size),
		metrics: m,
	}
}

func (m *Monitor) record(w *window, kind string, d time.Duration) {
	m.mu.Lock()
	w.add(d)
	m.mu.Unlock()
	m.metrics.Sample(kind, d)
}

func (m *Monitor) RecordRender(d time.Duration) { m.record(m.render, "render", d) }
func (m *Monitor) RecordScroll(d time.Duration) { m.record(m.scroll, "scroll", d) }
func (m *Monitor) RecordSearch(d time.Duration) { m.record(m.search, "search", d) }

// RecordCache counts a cache lookup.
func (m *Monitor) RecordCache(hit bool) {
	m.mu.Lock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
	m.mu.Unlock()
}

// Report is a graded summary of the current window.
type Report struct {
	Grade           string        `json:"grade"`
	Score           int           `json:"score"`
	AverageRender   time.Duration `json:"average_render"`
	AverageScroll   time.Duration `json:"average_scroll"`
	AverageSearch   time.Duration `json:"average_search"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	CacheRequests   int64         `json:"cache_requests"`
	Samples         int           `json:"samples"`
	Recommendations []string      `json:"recommendations"`
}

// Report grades the recorded samples.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	r := Report{
		AverageRender: m.render.average(),
		AverageScroll: m.scroll.average(),
		AverageSearch: m.search.average(),
		CacheRequests: m.hits + m.misses,
		Samples:       m.render.len() + m.scroll.len() + m.search.len(),
	}
	if r.CacheRequests > 0 {
		r.CacheHitRate = float64(m.hits) * 100 / float64(r.CacheRequests)
	}
	m.mu.Unlock()

	r.Score = 100
	r.Recommendations = []string{}
	if r.AverageRender > RenderBudget {
		r.Score -= 20
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Render time averages **%s**; paginate or virtualize long article lists.", r.AverageRender.Round(time.Millisecond)))
	}
	if r.AverageScroll > ScrollBudget {
		r.Score -= 15
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Scroll handling averages **%s**, above one frame; move work out of scroll handlers.", r.AverageScroll.Round(time.Millisecond)))
	}
	if r.AverageSearch > SearchBudget {
		r.Score -= 15
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Search averages **%s**; narrow queries with `category:` or `tag:` filters.", r.AverageSearch.Round(time.Millisecond)))
	}
	if r.CacheRequests > 0 && r.CacheHitRate < MinHitRate {
		r.Score -= 10
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Cache hit rate is **%.1f%%**; run `aimindset warm` or raise `lru_max_size`.", r.CacheHitRate))
	}
	r.Grade = grade(r.Score)
	return r
}

// Reset discards every sample and counter.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	size := len(m.render.samples)
	m.render, m.scroll, m.search = newWindow(size), newWindow(size), newWindow(size)
	m.hits, m.misses = 0, 0
}

func grade(score int) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	}
	return "D"
}

// Markdown renders the report for the CLI and the web page.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Performance: %s (%d/100)\n\n", r.Grade, r.Score)
	fmt.Fprintf(&b, "- Render: %s\n", r.AverageRender.Round(time.Microsecond))
	fmt.Fprintf(&b, "- Scroll: %s\n", r.AverageScroll.Round(time.Microsecond))
	fmt.Fprintf(&b, "- Search: %s\n", r.AverageSearch.Round(time.Microsecond))
	fmt.Fprintf(&b, "- Cache hit rate: %.1f%% of %d lookups\n", r.CacheHitRate, r.CacheRequests)
	if len(r.Recommendations) > 0 {
		b.WriteString("\n### Recommendations\n\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}
	return b.String()
}
