package article

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestUnmarshalTagShapes(t *testing.T) {
	data := []byte(`[
		{"id": "1", "title": "A", "tags": "ai, future, tech"},
		{"id": "2", "title": "B", "tags": ["ai", "future", "tech"]},
		{"id": "3", "title": "C", "tags": {"bad": true}},
		{"id": "4", "title": "D", "tags": null}
	]`)
	var articles []Article
	if err := json.Unmarshal(data, &articles); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"ai", "future", "tech"}
	if !reflect.DeepEqual(articles[0].Tags, want) {
		t.Errorf("string tags: got %v", articles[0].Tags)
	}
	if !reflect.DeepEqual(articles[1].Tags, want) {
		t.Errorf("list tags: got %v", articles[1].Tags)
	}
	if len(articles[2].Tags) != 0 {
		t.Errorf("expected empty tags for object shape, got %v", articles[2].Tags)
	}
	if len(articles[3].Tags) != 0 {
		t.Errorf("expected empty tags for null, got %v", articles[3].Tags)
	}
}

func TestUnmarshalCategoryShapes(t *testing.T) {
	data := []byte(`[
		{"id": 7, "title": "A", "category": "Tecnologia"},
		{"id": "8", "title": "B", "categories": {"name": "Negocios"}}
	]`)
	var articles []Article
	if err := json.Unmarshal(data, &articles); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if articles[0].ID != "7" {
		t.Errorf("expected numeric id normalized to \"7\", got %q", articles[0].ID)
	}
	if articles[0].Category != "Tecnologia" {
		t.Errorf("expected category 'Tecnologia', got %q", articles[0].Category)
	}
	if articles[1].Category != "Negocios" {
		t.Errorf("expected embedded category 'Negocios', got %q", articles[1].Category)
	}
}

func TestApprovalRateDerived(t *testing.T) {
	var a Article
	if err := json.Unmarshal([]byte(`{"id":"1","positive_feedback":3,"negative_feedback":1}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.ApprovalRate != 75 {
		t.Errorf("expected approval rate 75, got %v", a.ApprovalRate)
	}
	if ApprovalRate(0, 0) != 0 {
		t.Error("expected 0 approval rate without feedback")
	}
}

func TestRoundTripKeepsFields(t *testing.T) {
	in := []byte(`{"id":"1","title":"T","tags":"x,y","created_at":"2024-03-05T10:00:00.123+00:00","published":true,"approval_rate":42}`)
	var a Article
	if err := json.Unmarshal(in, &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var b Article
	if err := json.Unmarshal(out, &b); err != nil {
		t.Fatalf("second unmarshal: %v", err)
	}
	if !reflect.DeepEqual(a.Tags, b.Tags) || !a.CreatedAt.Equal(b.CreatedAt) || b.ApprovalRate != 42 || !b.Published {
		t.Errorf("round trip changed article: %+v vs %+v", a, b)
	}
}

func TestParseTime(t *testing.T) {
	cases := []string{
		"2024-03-05T10:00:00Z",
		"2024-03-05T10:00:00.123456+00:00",
		"2024-03-05 10:00:00",
		"2024-03-05",
	}
	for _, c := range cases {
		if ParseTime(c).IsZero() {
			t.Errorf("expected %q to parse", c)
		}
	}
	if !ParseTime("yesterday").IsZero() {
		t.Error("expected unparseable time to be zero")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.json")
	data := `[{"id":"a","title":"First","category":"IA"},{"id":"b","title":"Second","category":"IA"},{"id":"c","title":"Third","category":"Etica"}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	articles, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}

	cats := Categories(articles)
	if !reflect.DeepEqual(cats, []string{"IA", "Etica"}) {
		t.Errorf("unexpected categories %v", cats)
	}

	a, ok := ByID(articles, "b")
	if !ok || a.Title != "Second" {
		t.Errorf("ByID returned %+v, %v", a, ok)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseFeed(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Blog</title>
<item>
  <title>Agents in production</title>
  <link>https://example.com/agents</link>
  <guid>agents-1</guid>
  <category>IA</category>
  <category>agents</category>
  <description>Plain text description of the post.</description>
  <pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
</item>
<item>
  <title></title>
  <link>https://example.com/untitled</link>
</item>
</channel></rss>`

	fl := NewFeedLoader(nil, false, 0)
	articles, err := fl.ParseFeed(strings.NewReader(rss), "Blog")
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article (untitled skipped), got %d", len(articles))
	}
	a := articles[0]
	if a.ID != "agents-1" {
		t.Errorf("expected guid as id, got %q", a.ID)
	}
	if a.Category != "IA" {
		t.Errorf("expected first category as category, got %q", a.Category)
	}
	if !reflect.DeepEqual(a.Tags, []string{"IA", "agents"}) {
		t.Errorf("unexpected tags %v", a.Tags)
	}
	if a.Content != "Plain text description of the post." {
		t.Errorf("expected description as content, got %q", a.Content)
	}
	if a.CreatedAt.IsZero() || !a.Published {
		t.Error("expected published date and published flag")
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Hello&nbsp;<b>world</b> &amp; friends</p>")
	if got != "Hello world & friends" {
		t.Errorf("unexpected stripped text %q", got)
	}
}

func TestSourceName(t *testing.T) {
	if got := sourceName("https://blog.openai.com/rss"); got != "Openai" {
		t.Errorf("expected 'Openai', got %q", got)
	}
}
