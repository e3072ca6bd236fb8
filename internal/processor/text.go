package processor

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s and strips diacritics, so "Inteligéncia" and
// "inteligencia" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// words splits normalized text into letter/digit runs.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// FuzzyScore is the greedy subsequence score of term against word: the
// fraction of term's characters found in order in word.
func FuzzyScore(word, term string) float64 {
	tr := []rune(term)
	if len(tr) == 0 {
		return 0
	}
	wr := []rune(word)
	matched, j := 0, 0
	for _, c := range tr {
		for j < len(wr) && wr[j] != c {
			j++
		}
		if j == len(wr) {
			break
		}
		matched++
		j++
	}
	return float64(matched) / float64(len(tr))
}

// Similarity is 1 - levenshtein(a, b)/max(len(a), len(b)).
func Similarity(a, b string) float64 {
	ar, br := []rune(a), []rune(b)
	longest := max(len(ar), len(br))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ar, br))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// FuzzyMatch reports whether term approximately occurs in text. Exact
// containment always matches; otherwise the best per-word similarity, by
// either the subsequence score or edit distance, must reach threshold.
// Both inputs are expected to be normalized.
func FuzzyMatch(text, term string, threshold float64) bool {
	_, ok := fuzzyBest(text, term, threshold)
	return ok
}

func fuzzyBest(text, term string, threshold float64) (float64, bool) {
	if term == "" {
		return 0, false
	}
	if strings.Contains(text, term) {
		return 1, true
	}
	best := 0.0
	termLen := len([]rune(term))
	for _, w := range words(text) {
		// A word far shorter than the term cannot hold it as a subsequence
		// and would only score through edit distance noise.
		if len([]rune(w))*2 < termLen {
			continue
		}
		s := max(FuzzyScore(w, term), Similarity(w, term))
		if s > best {
			best = s
		}
	}
	return best, best >= threshold
}
