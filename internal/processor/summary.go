package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

const (
	wordsPerMinute    = 200
	summarySentences  = 3
	minSentenceLength = 20
	minKeywordLength  = 5
	keywordCount      = 10
)

const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

var positiveWords = wordSet(
	"excelente", "bueno", "buena", "mejor", "innovador", "innovadora", "positivo",
	"beneficio", "beneficios", "exito", "oportunidad", "oportunidades", "avance",
	"excellent", "good", "great", "better", "best", "innovative", "positive",
	"benefit", "benefits", "success", "opportunity", "improve", "progress",
)

var negativeWords = wordSet(
	"malo", "mala", "peor", "problema", "problemas", "riesgo", "riesgos", "peligro",
	"negativo", "fracaso", "amenaza", "dificil", "preocupacion",
	"bad", "worse", "worst", "problem", "problems", "risk", "risks", "danger",
	"negative", "failure", "threat", "difficult", "concern",
)

var stopWords = wordSet(
	"about", "after", "again", "because", "before", "being", "could", "their",
	"there", "these", "those", "through", "where", "which", "while", "would",
	"acerca", "antes", "aunque", "cuando", "desde", "donde", "durante", "entre",
	"hasta", "mientras", "nuestro", "otros", "porque", "puede", "pueden", "sobre",
	"tambien", "tiene", "tienen", "todas", "todos",
)

func wordSet(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}

// SummaryRequest summarizes one article. Text overrides the article body
// when set.
type SummaryRequest struct {
	Article article.Article `json:"article"`
	Text    string          `json:"text,omitempty"`
}

type Summary struct {
	ArticleID   string   `json:"article_id,omitempty"`
	Summary     string   `json:"summary"`
	Keywords    []string `json:"keywords"`
	ReadingTime int      `json:"reading_time"`
	WordCount   int      `json:"word_count"`
	Sentiment   string   `json:"sentiment"`
}

func runSummary(req SummaryRequest) (*Summary, error) {
	text := req.Text
	if text == "" {
		text = req.Article.Content
	}
	if strings.TrimSpace(text) == "" {
		text = req.Article.Excerpt
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("article %q has no text to summarize", req.Article.ID)
	}
	s := Summarize(text)
	s.ArticleID = req.Article.ID
	return s, nil
}

// Summarize builds an extractive summary of text.
func Summarize(text string) *Summary {
	s := &Summary{
		Summary:  extractSummary(text),
		Keywords: keywords(text),
	}

	all := words(Normalize(text))
	s.WordCount = len(all)
	s.ReadingTime = max(1, (s.WordCount+wordsPerMinute-1)/wordsPerMinute)
	s.Sentiment = sentiment(all)
	return s
}

func extractSummary(text string) string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var picked []string
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if len([]rune(p)) <= minSentenceLength {
			continue
		}
		picked = append(picked, p)
		if len(picked) == summarySentences {
			break
		}
	}
	if len(picked) == 0 {
		return ""
	}
	return strings.Join(picked, ". ") + "."
}

func keywords(text string) []string {
	counts := make(map[string]int)
	first := make(map[string]int)
	for i, w := range words(Normalize(text)) {
		if len([]rune(w)) < minKeywordLength || stopWords[w] {
			continue
		}
		if _, ok := first[w]; !ok {
			first[w] = i
		}
		counts[w]++
	}

	out := make([]string, 0, len(counts))
	for w := range counts {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return first[out[i]] < first[out[j]]
	})
	if len(out) > keywordCount {
		out = out[:keywordCount]
	}
	return out
}

func sentiment(ws []string) string {
	pos, neg := 0, 0
	for _, w := range ws {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}
	switch {
	case pos > neg:
		return Positive
	case neg > pos:
		return Negative
	}
	return Neutral
}
