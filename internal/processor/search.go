package processor

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

const (
	minTermLength         = 3
	DefaultFuzzyThreshold = 0.7
)

// synonyms expands a normalized term into equivalent phrases.
var synonyms = map[string][]string{
	"ia":                      {"inteligencia artificial", "ai"},
	"ai":                      {"artificial intelligence", "ia"},
	"inteligencia artificial": {"ia", "ai"},
	"artificial intelligence": {"ai", "ia"},
	"ml":                      {"machine learning", "aprendizaje automatico"},
	"machine learning":        {"ml", "aprendizaje automatico"},
	"aprendizaje automatico":  {"ml", "machine learning"},
	"dl":                      {"deep learning", "aprendizaje profundo"},
	"deep learning":           {"dl", "aprendizaje profundo"},
	"llm":                     {"large language model", "modelo de lenguaje"},
	"nlp":                     {"natural language processing", "procesamiento de lenguaje natural"},
	"chatgpt":                 {"gpt", "openai"},
	"robot":                   {"robotica", "automatizacion"},
}

// DateRange is an inclusive time window. Zero bounds are open.
type DateRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Contains reports whether t lies within the range, bounds included.
func (r *DateRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// SearchFilters narrow a search before term matching.
type SearchFilters struct {
	Title     string     `json:"title,omitempty"`
	Tag       string     `json:"tag,omitempty"`
	Category  string     `json:"category,omitempty"`
	DateRange *DateRange `json:"date_range,omitempty"`
	Exclude   []string   `json:"exclude,omitempty"`
}

type SearchOptions struct {
	Fuzzy     bool          `json:"fuzzy,omitempty"`
	Threshold float64       `json:"threshold,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Filters   SearchFilters `json:"filters,omitempty"`
}

type SearchRequest struct {
	Articles []article.Article `json:"articles"`
	Query    string            `json:"query"`
	Options  SearchOptions     `json:"options"`
}

// SearchResult is a matching article with its relevance score and the
// fields the query matched, for highlighting.
type SearchResult struct {
	Article       article.Article `json:"article"`
	Score         float64         `json:"score"`
	MatchedFields []string        `json:"matched_fields"`
	MatchedTerms  []string        `json:"matched_terms"`
}

// ParsedQuery is a query string split into free terms and inline filters.
type ParsedQuery struct {
	Terms   []string
	Filters SearchFilters
}

// ParseQuery understands free text plus title:x, tag:x, category:x and -x.
// Terms are normalized; terms shorter than three characters are dropped
// unless they have synonyms.
func ParseQuery(query string) ParsedQuery {
	var pq ParsedQuery
	var free []string
	for _, field := range strings.Fields(query) {
		lower := strings.ToLower(field)
		switch {
		case strings.HasPrefix(lower, "title:"):
			pq.Filters.Title = Normalize(field[len("title:"):])
		case strings.HasPrefix(lower, "tag:"):
			pq.Filters.Tag = Normalize(field[len("tag:"):])
		case strings.HasPrefix(lower, "category:"):
			pq.Filters.Category = Normalize(field[len("category:"):])
		case strings.HasPrefix(field, "-") && len(field) > 1:
			pq.Filters.Exclude = append(pq.Filters.Exclude, Normalize(field[1:]))
		default:
			free = append(free, field)
		}
	}

	// Multi-word synonym keys are taken as whole terms before splitting.
	text := " " + strings.Join(words(Normalize(strings.Join(free, " "))), " ") + " "
	seen := make(map[string]bool)
	for _, phrase := range synonymPhrases {
		if strings.Contains(text, " "+phrase+" ") {
			text = strings.ReplaceAll(text, " "+phrase+" ", "  ")
			seen[phrase] = true
			pq.Terms = append(pq.Terms, phrase)
		}
	}
	for _, w := range strings.Fields(text) {
		if seen[w] {
			continue
		}
		if len([]rune(w)) < minTermLength && len(synonyms[w]) == 0 {
			continue
		}
		seen[w] = true
		pq.Terms = append(pq.Terms, w)
	}
	return pq
}

// synonymPhrases are the multi-word synonym keys, longest first.
var synonymPhrases = func() []string {
	var out []string
	for k := range synonyms {
		if strings.Contains(k, " ") {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

// ExpandTerms returns the terms followed by their synonyms, without
// duplicates, in first-seen order.
func ExpandTerms(terms []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range terms {
		for _, x := range append([]string{t}, synonyms[t]...) {
			if !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		}
	}
	return out
}

type searchable struct {
	title, content, excerpt, category, tags string
	all                                     string
}

func newSearchable(a article.Article) searchable {
	s := searchable{
		title:    Normalize(a.Title),
		content:  Normalize(a.Content),
		excerpt:  Normalize(a.Excerpt),
		category: Normalize(a.Category),
		tags:     Normalize(strings.Join(a.Tags, " ")),
	}
	s.all = strings.Join([]string{s.title, s.content, s.excerpt, s.category, s.tags}, " ")
	return s
}

func mergeFilters(base, extra SearchFilters) SearchFilters {
	if extra.Title != "" {
		base.Title = Normalize(extra.Title)
	}
	if extra.Tag != "" {
		base.Tag = Normalize(extra.Tag)
	}
	if extra.Category != "" {
		base.Category = Normalize(extra.Category)
	}
	if extra.DateRange != nil {
		base.DateRange = extra.DateRange
	}
	for _, x := range extra.Exclude {
		base.Exclude = append(base.Exclude, Normalize(x))
	}
	return base
}

func passesFilters(a article.Article, s searchable, f SearchFilters) bool {
	if f.Title != "" && !strings.Contains(s.title, f.Title) {
		return false
	}
	if f.Category != "" && s.category != f.Category {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range a.Tags {
			if Normalize(t) == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.DateRange.Contains(a.CreatedAt) {
		return false
	}
	for _, x := range f.Exclude {
		if x != "" && strings.Contains(s.all, x) {
			return false
		}
	}
	return true
}

func runSearch(req SearchRequest) ([]SearchResult, error) {
	pq := ParseQuery(req.Query)
	filters := mergeFilters(pq.Filters, req.Options.Filters)
	threshold := req.Options.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}

	terms := ExpandTerms(pq.Terms)

	results := []SearchResult{}
	for _, a := range req.Articles {
		s := newSearchable(a)
		if !passesFilters(a, s, filters) {
			continue
		}

		r := SearchResult{Article: a}
		if len(terms) > 0 {
			var ok bool
			if req.Options.Fuzzy {
				ok = scoreFuzzy(&r, s, terms, threshold)
			} else {
				ok = scoreExact(&r, s, terms)
			}
			if !ok {
				continue
			}
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if req.Options.Limit > 0 && len(results) > req.Options.Limit {
		results = results[:req.Options.Limit]
	}
	return results, nil
}

// scoreExact requires every expanded term to be contained in the article
// text.
func scoreExact(r *SearchResult, s searchable, terms []string) bool {
	fields := make(map[string]bool)
	for _, term := range terms {
		if !strings.Contains(s.all, term) {
			return false
		}
		r.MatchedTerms = append(r.MatchedTerms, term)
		r.Score += termScore(s, term, fields)
	}
	r.MatchedFields = orderedFields(fields)
	return true
}

// scoreFuzzy accepts the article if any term approximately matches.
// Approximate matches add round(similarity*5) so that misspelled terms,
// which contain no field exactly, still rank.
func scoreFuzzy(r *SearchResult, s searchable, terms []string, threshold float64) bool {
	fields := make(map[string]bool)
	matched := false
	for _, term := range terms {
		sim, ok := fuzzyBest(s.all, term, threshold)
		if !ok {
			continue
		}
		matched = true
		r.MatchedTerms = append(r.MatchedTerms, term)
		r.Score += termScore(s, term, fields)
		if sim < 1 {
			r.Score += math.Round(sim * 5)
			fields["fuzzy"] = true
		}
	}
	if !matched {
		return false
	}
	r.MatchedFields = orderedFields(fields)
	return true
}

func termScore(s searchable, term string, fields map[string]bool) float64 {
	score := 0.0
	if strings.HasPrefix(s.title, term) {
		score += 20
	}
	if strings.Contains(s.title, term) {
		score += 10
		fields["title"] = true
	}
	if strings.Contains(s.excerpt, term) {
		score += 2
		fields["excerpt"] = true
	}
	if n := strings.Count(s.content, term); n > 0 {
		score += float64(n)
		fields["content"] = true
	}
	if strings.Contains(s.category, term) {
		fields["category"] = true
	}
	if strings.Contains(s.tags, term) {
		fields["tags"] = true
	}
	return score
}

var fieldOrder = []string{"title", "excerpt", "content", "category", "tags", "fuzzy"}

func orderedFields(fields map[string]bool) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fieldOrder {
		if fields[f] {
			out = append(out, f)
		}
	}
	return out
}
