// Package article defines the Article record consumed by the caches and the
// task queue, and the loaders that produce article collections.
package article

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Article is a published or draft post. Records are read-only once loaded.
type Article struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Slug             string    `json:"slug,omitempty"`
	Content          string    `json:"content"`
	Excerpt          string    `json:"excerpt"`
	Category         string    `json:"category"`
	Tags             []string  `json:"tags"`
	Published        bool      `json:"published"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ImageURL         string    `json:"image_url,omitempty"`
	ViewCount        int       `json:"view_count"`
	Likes            int       `json:"likes"`
	PositiveFeedback int       `json:"positive_feedback"`
	NegativeFeedback int       `json:"negative_feedback"`
	ApprovalRate     float64   `json:"approval_rate"`
}

// rawArticle mirrors the loosely typed rows exported by the backend.
type rawArticle struct {
	ID               json.RawMessage `json:"id"`
	Title            string          `json:"title"`
	Slug             string          `json:"slug"`
	Content          string          `json:"content"`
	Excerpt          string          `json:"excerpt"`
	Category         json.RawMessage `json:"category"`
	Categories       json.RawMessage `json:"categories"`
	Tags             json.RawMessage `json:"tags"`
	Published        bool            `json:"published"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
	ImageURL         string          `json:"image_url"`
	ViewCount        int             `json:"view_count"`
	Likes            int             `json:"likes"`
	PositiveFeedback int             `json:"positive_feedback"`
	NegativeFeedback int             `json:"negative_feedback"`
	ApprovalRate     *float64        `json:"approval_rate"`
}

// UnmarshalJSON accepts tags as a comma-separated string or a list, and the
// category as a plain name or an embedded {"name": ...} object.
func (a *Article) UnmarshalJSON(data []byte) error {
	var raw rawArticle
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Article{
		ID:               parseID(raw.ID),
		Title:            raw.Title,
		Slug:             raw.Slug,
		Content:          raw.Content,
		Excerpt:          raw.Excerpt,
		Tags:             ParseTags(raw.Tags),
		Published:        raw.Published,
		CreatedAt:        ParseTime(raw.CreatedAt),
		UpdatedAt:        ParseTime(raw.UpdatedAt),
		ImageURL:         raw.ImageURL,
		ViewCount:        raw.ViewCount,
		Likes:            raw.Likes,
		PositiveFeedback: raw.PositiveFeedback,
		NegativeFeedback: raw.NegativeFeedback,
	}

	a.Category = parseCategory(raw.Category)
	if a.Category == "" {
		a.Category = parseCategory(raw.Categories)
	}

	if raw.ApprovalRate != nil {
		a.ApprovalRate = *raw.ApprovalRate
	} else {
		a.ApprovalRate = ApprovalRate(a.PositiveFeedback, a.NegativeFeedback)
	}
	return nil
}

// ApprovalRate returns the percentage of positive feedback, 0 without feedback.
func ApprovalRate(positive, negative int) float64 {
	total := positive + negative
	if total <= 0 {
		return 0
	}
	return float64(positive) * 100 / float64(total)
}

// ParseTags normalizes a raw tags value into an ordered list of trimmed,
// non-empty strings. Shapes other than a string or a list yield nil.
func ParseTags(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return SplitTags(s)
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if t := strings.TrimSpace(v); t != "" {
				tags = append(tags, t)
			}
		case float64:
			tags = append(tags, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return tags
}

// SplitTags splits a comma-separated tag string.
func SplitTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the timestamp formats the backend emits. Unparseable
// values yield the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseCategory(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}

// Categories returns the distinct category names in first-seen order.
func Categories(articles []Article) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, a := range articles {
		if a.Category == "" {
			continue
		}
		if _, ok := seen[a.Category]; ok {
			continue
		}
		seen[a.Category] = struct{}{}
		names = append(names, a.Category)
	}
	return names
}

// ByID returns the article with the given id.
func ByID(articles []Article, id string) (Article, bool) {
	for _, a := range articles {
		if a.ID == id {
			return a, true
		}
	}
	return Article{}, false
}
