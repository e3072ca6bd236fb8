package processor

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

const topTagCount = 10

type AnalyzeRequest struct {
	Articles []article.Article `json:"articles"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Analysis aggregates an article collection in a single pass.
type Analysis struct {
	Total                int            `json:"total"`
	Published            int            `json:"published"`
	Drafts               int            `json:"drafts"`
	Categories           map[string]int `json:"categories"`
	TopTags              []TagCount     `json:"top_tags"`
	MonthlyPublications  map[string]int `json:"monthly_publications"`
	AverageContentLength float64        `json:"average_content_length"`
	AverageTitleLength   float64        `json:"average_title_length"`
}

func runAnalyze(req AnalyzeRequest) (*Analysis, error) {
	return AnalyzeArticles(req.Articles), nil
}

// AnalyzeArticles computes category and tag distributions, a YYYY-MM
// publication histogram and length averages. Articles without a creation
// date are left out of the histogram.
func AnalyzeArticles(articles []article.Article) *Analysis {
	an := &Analysis{
		Total:               len(articles),
		Categories:          make(map[string]int),
		MonthlyPublications: make(map[string]int),
		TopTags:             []TagCount{},
	}

	tags := make(map[string]int)
	display := make(map[string]string)
	var contentLen, titleLen int
	for _, a := range articles {
		if a.Published {
			an.Published++
		} else {
			an.Drafts++
		}

		category := a.Category
		if category == "" {
			category = "Sin categoria"
		}
		an.Categories[category]++

		for _, t := range a.Tags {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" {
				continue
			}
			if _, ok := display[key]; !ok {
				display[key] = strings.TrimSpace(t)
			}
			tags[key]++
		}

		if !a.CreatedAt.IsZero() {
			an.MonthlyPublications[a.CreatedAt.Format("2006-01")]++
		}

		contentLen += utf8.RuneCountInString(a.Content)
		titleLen += utf8.RuneCountInString(a.Title)
	}

	if n := len(articles); n > 0 {
		an.AverageContentLength = float64(contentLen) / float64(n)
		an.AverageTitleLength = float64(titleLen) / float64(n)
	}

	for key, count := range tags {
		an.TopTags = append(an.TopTags, TagCount{Tag: display[key], Count: count})
	}
	sort.Slice(an.TopTags, func(i, j int) bool {
		if an.TopTags[i].Count != an.TopTags[j].Count {
			return an.TopTags[i].Count > an.TopTags[j].Count
		}
		return an.TopTags[i].Tag < an.TopTags[j].Tag
	})
	if len(an.TopTags) > topTagCount {
		an.TopTags = an.TopTags[:topTagCount]
	}
	return an
}
