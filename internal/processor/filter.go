package processor

import (
	"strings"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

// FilterOptions are applied conjunctively; unset fields pass everything.
type FilterOptions struct {
	Category  string     `json:"category,omitempty"`
	DateRange *DateRange `json:"date_range,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Published *bool      `json:"published,omitempty"`
}

type FilterRequest struct {
	Articles []article.Article `json:"articles"`
	Filters  FilterOptions     `json:"filters"`
}

func runFilter(req FilterRequest) ([]article.Article, error) {
	return FilterArticles(req.Articles, req.Filters), nil
}

// FilterArticles returns the articles matching every set filter, in input
// order. Category comparison ignores case and diacritics; a tag filter
// passes when the article shares at least one tag with it.
func FilterArticles(articles []article.Article, f FilterOptions) []article.Article {
	category := Normalize(strings.TrimSpace(f.Category))
	wanted := make(map[string]bool, len(f.Tags))
	for _, t := range f.Tags {
		if t = Normalize(strings.TrimSpace(t)); t != "" {
			wanted[t] = true
		}
	}

	out := []article.Article{}
	for _, a := range articles {
		if category != "" && Normalize(a.Category) != category {
			continue
		}
		if !f.DateRange.Contains(a.CreatedAt) {
			continue
		}
		if len(wanted) > 0 && !sharesTag(a.Tags, wanted) {
			continue
		}
		if f.Published != nil && a.Published != *f.Published {
			continue
		}
		out = append(out, a)
	}
	return out
}

func sharesTag(tags []string, wanted map[string]bool) bool {
	for _, t := range tags {
		if wanted[Normalize(t)] {
			return true
		}
	}
	return false
}
