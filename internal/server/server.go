package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/AIMindset/internal/article"
	"github.com/TobiSchelling/AIMindset/internal/lru"
	"github.com/TobiSchelling/AIMindset/internal/perf"
	"github.com/TobiSchelling/AIMindset/internal/processor"
	"github.com/TobiSchelling/AIMindset/internal/store"
	"github.com/TobiSchelling/AIMindset/internal/warmup"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Deps are the collaborators the server reads from. Gatherer may be nil,
// in which case /metrics is not served.
type Deps struct {
	Facade   *perf.Facade
	Store    *store.Store
	LRU      *lru.Cache
	Articles func() ([]article.Article, error)
	Gatherer prometheus.Gatherer
}

// Server is the local HTTP API over the article layer.
type Server struct {
	deps  Deps
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(deps Deps) (*Server, error) {
	if deps.Facade == nil || deps.Articles == nil {
		return nil, errors.New("server needs a facade and an article source")
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"bytes": func(n int64) string {
			if n < 0 {
				n = 0
			}
			return humanize.Bytes(uint64(n))
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "article.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{deps: deps, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Pages
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /articles/{id}", s.handleArticlePage)

	// API
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/filter", s.handleFilter)
	s.mux.HandleFunc("GET /api/sort", s.handleSort)
	s.mux.HandleFunc("GET /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /api/articles/{id}", s.handleArticle)
	s.mux.HandleFunc("GET /api/articles/{id}/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("POST /api/cache/cleanup", s.handleCleanup)
	s.mux.HandleFunc("POST /api/cache/warm", s.handleWarm)
	s.mux.HandleFunc("GET /api/report", s.handleReport)
	s.mux.HandleFunc("POST /api/report/render", s.handleRecordRender)

	if s.deps.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	articles, err := s.deps.Articles()
	if err != nil {
		log.Printf("Loading articles: %v", err)
	}

	report := s.deps.Facade.Report()
	data := map[string]any{
		"Report":         report,
		"ReportMarkdown": report.Markdown(),
		"Articles":       articles,
	}
	if s.deps.Store != nil {
		if st, err := s.deps.Store.Stats(); err == nil {
			data["StoreStats"] = st
		}
	}
	if s.deps.LRU != nil {
		data["LRUStats"] = s.deps.LRU.Stats()
	}

	s.render(w, "index.html", data)
	s.deps.Facade.RecordRender(time.Since(start))
}

func (s *Server) handleArticlePage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	a, err := s.article(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.NotFound(w, r)
		return
	}

	summary, err := s.deps.Facade.Summarize(r.Context(), *a)
	if err != nil {
		log.Printf("Summarizing %s: %v", a.ID, err)
	}
	s.render(w, "article.html", map[string]any{
		"Article": a,
		"Summary": summary,
	})
	s.deps.Facade.RecordRender(time.Since(start))
}

func (s *Server) article(id string) (*article.Article, error) {
	return s.deps.Facade.GetArticle(id, func(id string) (*article.Article, error) {
		articles, err := s.deps.Articles()
		if err != nil {
			return nil, err
		}
		a, ok := article.ByID(articles, id)
		if !ok {
			return nil, nil
		}
		return &a, nil
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := processor.SearchOptions{
		Fuzzy: parseBool(q.Get("fuzzy")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be in (0, 1]")
			return
		}
		opts.Threshold = f
	}

	articles, ok := s.loadArticles(w)
	if !ok {
		return
	}
	results, err := s.deps.Facade.Search(r.Context(), articles, q.Get("q"), opts)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q.Get("q"), "count": len(results), "results": results})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	opts, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	articles, ok := s.loadArticles(w)
	if !ok {
		return
	}
	out, err := s.deps.Facade.Filter(r.Context(), articles, opts)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "articles": out})
}

// ParseFilter reads category, tag (repeatable), published, from and to.
func ParseFilter(q map[string][]string) (processor.FilterOptions, error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	opts := processor.FilterOptions{Category: get("category")}
	for _, t := range q["tag"] {
		opts.Tags = append(opts.Tags, article.SplitTags(t)...)
	}
	if v := get("published"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid published value %q", v)
		}
		opts.Published = &b
	}

	from, to := get("from"), get("to")
	if from != "" || to != "" {
		dr := &processor.DateRange{}
		if from != "" {
			if dr.Start = article.ParseTime(from); dr.Start.IsZero() {
				return opts, fmt.Errorf("invalid from date %q", from)
			}
		}
		if to != "" {
			if dr.End = article.ParseTime(to); dr.End.IsZero() {
				return opts, fmt.Errorf("invalid to date %q", to)
			}
			if len(to) == len("2006-01-02") {
				// A bare end date covers the whole day.
				dr.End = dr.End.Add(24*time.Hour - time.Nanosecond)
			}
		}
		opts.DateRange = dr
	}
	return opts, nil
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	articles, ok := s.loadArticles(w)
	if !ok {
		return
	}

	var scores map[string]float64
	if q.Get("by") == processor.SortByRelevance {
		results, err := s.deps.Facade.Search(r.Context(), articles, q.Get("q"), processor.SearchOptions{})
		if err != nil {
			writeTaskError(w, err)
			return
		}
		scores = make(map[string]float64, len(results))
		for _, res := range results {
			scores[res.Article.ID] = res.Score
		}
	}

	out, err := s.deps.Facade.Sort(r.Context(), articles, q.Get("by"), q.Get("order"), scores)
	if err != nil {
		var te *processor.TaskError
		if errors.As(err, &te) {
			writeError(w, http.StatusBadRequest, te.Message)
			return
		}
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "articles": out})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	articles, ok := s.loadArticles(w)
	if !ok {
		return
	}
	an, err := s.deps.Facade.Analyze(r.Context(), articles)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, an)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	a, err := s.article(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	a, err := s.article(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	summary, err := s.deps.Facade.Summarize(r.Context(), *a)
	if err != nil {
		var te *processor.TaskError
		if errors.As(err, &te) {
			writeError(w, http.StatusUnprocessableEntity, te.Message)
			return
		}
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	if s.deps.Store != nil {
		st, err := s.deps.Store.Stats()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		out["store"] = st
		if last, err := warmup.LastCleanup(s.deps.Store); err == nil && !last.IsZero() {
			out["last_cleanup"] = last
		}
	}
	if s.deps.LRU != nil {
		out["lru"] = s.deps.LRU.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "durable cache disabled")
		return
	}
	n, err := warmup.Cleanup(s.deps.Store, time.Now())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleWarm(w http.ResponseWriter, r *http.Request) {
	articles, ok := s.loadArticles(w)
	if !ok {
		return
	}
	if err := s.deps.Facade.CacheArticles(articles); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cached": len(articles)})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Facade.Report())
}

// handleRecordRender accepts render timings measured by the client.
func (s *Server) handleRecordRender(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.ParseFloat(r.FormValue("ms"), 64)
	if err != nil || ms < 0 {
		writeError(w, http.StatusBadRequest, "ms must be a non-negative number")
		return
	}
	s.deps.Facade.RecordRender(time.Duration(ms * float64(time.Millisecond)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadArticles(w http.ResponseWriter) ([]article.Article, bool) {
	articles, err := s.deps.Articles()
	if err != nil {
		log.Printf("Loading articles: %v", err)
		writeError(w, http.StatusServiceUnavailable, "articles unavailable")
		return nil, false
	}
	return articles, true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port and stops when ctx is done.
func Serve(ctx context.Context, deps Deps, port int) error {
	srv, err := New(deps)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
