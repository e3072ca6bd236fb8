package processor

import (
	"reflect"
	"strings"
	"testing"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

func articleIDs(articles []article.Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.ID
	}
	return out
}

func TestFilterConjunction(t *testing.T) {
	articles := sampleArticles()
	published := true
	got := FilterArticles(articles, FilterOptions{Category: "tecnologia", Published: &published})
	if ids := articleIDs(got); !reflect.DeepEqual(ids, []string{"1"}) {
		t.Fatalf("expected [1], got %v", ids)
	}
	for _, a := range got {
		if Normalize(a.Category) != "tecnologia" || !a.Published {
			t.Errorf("article %s violates filter", a.ID)
		}
	}
}

func TestFilterPassThrough(t *testing.T) {
	articles := sampleArticles()
	if got := FilterArticles(articles, FilterOptions{}); len(got) != len(articles) {
		t.Errorf("expected empty filter to keep all %d articles, got %d", len(articles), len(got))
	}
}

func TestFilterDateRangeAndTags(t *testing.T) {
	articles := sampleArticles()
	got := FilterArticles(articles, FilterOptions{
		DateRange: &DateRange{Start: date("2025-03-10"), End: date("2025-04-02")},
	})
	if ids := articleIDs(got); !reflect.DeepEqual(ids, []string{"1", "2"}) {
		t.Errorf("date range: got %v", ids)
	}

	got = FilterArticles(articles, FilterOptions{Tags: []string{"ETHICS", "robotics"}})
	if ids := articleIDs(got); !reflect.DeepEqual(ids, []string{"2", "3"}) {
		t.Errorf("tag intersection: got %v", ids)
	}

	draft := false
	got = FilterArticles(articles, FilterOptions{Published: &draft})
	if ids := articleIDs(got); !reflect.DeepEqual(ids, []string{"3"}) {
		t.Errorf("drafts: got %v", ids)
	}
}

func TestSortArticles(t *testing.T) {
	articles := sampleArticles()

	cases := []struct {
		by, order string
		want      []string
	}{
		{SortByDate, Descending, []string{"3", "2", "1", "4"}},
		{SortByDate, Ascending, []string{"4", "1", "2", "3"}},
		{SortByRating, Descending, []string{"2", "1", "4", "3"}},
		{SortByTitle, Ascending, []string{"1", "3", "4", "2"}},
	}
	for _, c := range cases {
		got, err := SortArticles(articles, c.by, c.order, nil)
		if err != nil {
			t.Fatalf("%s %s: %v", c.by, c.order, err)
		}
		if ids := articleIDs(got); !reflect.DeepEqual(ids, c.want) {
			t.Errorf("%s %s: expected %v, got %v", c.by, c.order, c.want, ids)
		}
	}

	if articles[0].ID != "1" {
		t.Error("expected input slice to be left untouched")
	}
}

func TestSortRelevanceStable(t *testing.T) {
	articles := sampleArticles()
	scores := map[string]float64{"3": 10, "1": 5, "2": 5}
	got, err := SortArticles(articles, SortByRelevance, Descending, scores)
	if err != nil {
		t.Fatal(err)
	}
	if ids := articleIDs(got); !reflect.DeepEqual(ids, []string{"3", "1", "2", "4"}) {
		t.Errorf("expected stable relevance order, got %v", ids)
	}
}

func TestSortInvalid(t *testing.T) {
	if _, err := SortArticles(nil, "views", "", nil); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := SortArticles(nil, SortByDate, "sideways", nil); err == nil {
		t.Error("expected error for unknown order")
	}
}

func TestAnalyze(t *testing.T) {
	articles := sampleArticles()
	articles = append(articles, article.Article{ID: "5", Title: "Sin fecha", Tags: []string{"AI", "future"}})

	an := AnalyzeArticles(articles)
	if an.Total != 5 || an.Published != 3 || an.Drafts != 2 {
		t.Errorf("unexpected counts %+v", an)
	}
	if an.Categories["Tecnología"] != 2 || an.Categories["Sin categoria"] != 1 {
		t.Errorf("unexpected categories %v", an.Categories)
	}
	if an.MonthlyPublications["2025-04"] != 2 || an.MonthlyPublications["2024-12"] != 1 {
		t.Errorf("unexpected histogram %v", an.MonthlyPublications)
	}
	if len(an.TopTags) == 0 || an.TopTags[0].Tag != "ai" || an.TopTags[0].Count != 2 {
		t.Errorf("unexpected top tags %v", an.TopTags)
	}
	if an.AverageTitleLength <= 0 || an.AverageContentLength <= 0 {
		t.Error("expected positive length averages")
	}
}

func TestAnalyzeTopTagsCapped(t *testing.T) {
	var articles []article.Article
	for i := 0; i < 15; i++ {
		articles = append(articles, article.Article{Tags: []string{string(rune('a' + i))}})
	}
	if n := len(AnalyzeArticles(articles).TopTags); n != 10 {
		t.Errorf("expected 10 top tags, got %d", n)
	}
	if an := AnalyzeArticles(nil); an.Total != 0 || an.AverageTitleLength != 0 {
		t.Errorf("unexpected analysis of empty input %+v", an)
	}
}

func TestSummarize(t *testing.T) {
	text := "Short one. The transformer architecture changed natural language processing forever! " +
		"Researchers keep improving transformer efficiency with better attention. " +
		"Is this progress sustainable for smaller research groups? " +
		"A fourth sentence that should never appear in the summary."

	s := Summarize(text)
	if strings.Contains(s.Summary, "Short one") {
		t.Error("expected short sentence to be skipped")
	}
	if strings.Contains(s.Summary, "fourth sentence") {
		t.Error("expected at most three sentences")
	}
	if !strings.HasPrefix(s.Summary, "The transformer architecture") || !strings.HasSuffix(s.Summary, ".") {
		t.Errorf("unexpected summary %q", s.Summary)
	}
	if len(s.Keywords) == 0 || s.Keywords[0] != "transformer" {
		t.Errorf("expected 'transformer' as top keyword, got %v", s.Keywords)
	}
	for _, k := range s.Keywords {
		if len(k) <= 4 {
			t.Errorf("keyword %q too short", k)
		}
	}
	if s.ReadingTime != 1 {
		t.Errorf("expected 1 minute, got %d", s.ReadingTime)
	}
	if s.Sentiment != Positive {
		t.Errorf("expected positive sentiment, got %s", s.Sentiment)
	}
}

func TestSummaryReadingTimeAndSentiment(t *testing.T) {
	long := strings.Repeat("palabra ", 401)
	if rt := Summarize(long).ReadingTime; rt != 3 {
		t.Errorf("expected 3 minutes for 401 words, got %d", rt)
	}
	if s := Summarize("Un riesgo y un problema, pero también una oportunidad."); s.Sentiment != Negative {
		t.Errorf("expected negative sentiment, got %s", s.Sentiment)
	}
	if s := Summarize("Good and bad."); s.Sentiment != Neutral {
		t.Errorf("expected neutral on tie, got %s", s.Sentiment)
	}
}

func TestRunSummaryEmpty(t *testing.T) {
	if _, err := runSummary(SummaryRequest{Article: article.Article{ID: "x"}}); err == nil {
		t.Error("expected error for article without text")
	}
	s, err := runSummary(SummaryRequest{Article: sampleArticles()[1]})
	if err != nil || s.ArticleID != "2" {
		t.Errorf("unexpected summary %+v, %v", s, err)
	}
}

func TestFuzzyMatch(t *testing.T) {
	if !FuzzyMatch("machine learning basics", "learnin", 0.8) {
		t.Error("expected containment to match")
	}
	if !FuzzyMatch("transformers", "transfromers", 0.8) {
		t.Error("expected transposition to match")
	}
	if FuzzyMatch("cats", "elephant", 0.7) {
		t.Error("expected unrelated words not to match")
	}
	if FuzzyScore("agentes", "ags") != 1 {
		t.Error("expected full subsequence score")
	}
	if Similarity("", "") != 1 || Similarity("abc", "abd") < 0.66 {
		t.Error("unexpected similarity")
	}
	if Normalize("Ñandú Électrico") != "nandu electrico" {
		t.Errorf("unexpected normalization %q", Normalize("Ñandú Électrico"))
	}
}
