package processor

import (
	"fmt"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

const (
	SortByDate      = "date"
	SortByTitle     = "title"
	SortByRating    = "rating"
	SortByRelevance = "relevance"

	Ascending  = "asc"
	Descending = "desc"
)

// SortRequest orders articles. Relevance ordering reads Scores, keyed by
// article id, typically taken from a prior search.
type SortRequest struct {
	Articles []article.Article  `json:"articles"`
	By       string             `json:"by"`
	Order    string             `json:"order"`
	Scores   map[string]float64 `json:"scores,omitempty"`
}

func runSort(req SortRequest) ([]article.Article, error) {
	return SortArticles(req.Articles, req.By, req.Order, req.Scores)
}

// SortArticles returns a sorted copy. Equal elements keep their input order.
func SortArticles(articles []article.Article, by, order string, scores map[string]float64) ([]article.Article, error) {
	if order == "" {
		order = Descending
	}
	if order != Ascending && order != Descending {
		return nil, fmt.Errorf("invalid sort order %q", order)
	}

	var cmp func(a, b article.Article) int
	switch by {
	case SortByDate, "":
		cmp = func(a, b article.Article) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortByTitle:
		col := collate.New(language.Spanish, collate.IgnoreCase)
		cmp = func(a, b article.Article) int { return col.CompareString(a.Title, b.Title) }
	case SortByRating:
		cmp = func(a, b article.Article) int { return compareFloat(a.ApprovalRate, b.ApprovalRate) }
	case SortByRelevance:
		cmp = func(a, b article.Article) int { return compareFloat(scores[a.ID], scores[b.ID]) }
	default:
		return nil, fmt.Errorf("invalid sort field %q", by)
	}

	out := make([]article.Article, len(articles))
	copy(out, articles)
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if order == Descending {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
