package article

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 50

// FeedConfig is a single RSS/Atom source.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedLoader builds article collections from RSS/Atom feeds.
type FeedLoader struct {
	feeds        []FeedConfig
	fetchContent bool
	client       *http.Client
}

// NewFeedLoader creates a feed loader. When fetchContent is set, items without
// a body are fetched over HTTP and run through readability extraction.
func NewFeedLoader(feeds []FeedConfig, fetchContent bool, timeout time.Duration) *FeedLoader {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &FeedLoader{
		feeds:        feeds,
		fetchContent: fetchContent,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// LoadAll parses every configured feed. Feeds that fail are logged and skipped.
func (fl *FeedLoader) LoadAll() []Article {
	parser := gofeed.NewParser()
	var all []Article
	for _, fc := range fl.feeds {
		name := fc.Name
		if name == "" {
			name = sourceName(fc.URL)
		}

		feed, err := parser.ParseURL(fc.URL)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		items := fl.fromFeed(feed, name)
		all = append(all, items...)
		log.Printf("Loaded %d articles from %s", len(items), name)
	}
	return all
}

// ParseFeed converts an already-read feed document into articles.
func (fl *FeedLoader) ParseFeed(r io.Reader, name string) ([]Article, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, err
	}
	return fl.fromFeed(feed, name), nil
}

func (fl *FeedLoader) fromFeed(feed *gofeed.Feed, name string) []Article {
	var articles []Article
	for _, item := range feed.Items {
		if len(articles) >= maxPerFeed {
			break
		}
		a, ok := fl.fromItem(item, name)
		if !ok {
			continue
		}
		articles = append(articles, a)
	}
	return articles
}

func (fl *FeedLoader) fromItem(item *gofeed.Item, source string) (Article, bool) {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	title := strings.TrimSpace(item.Title)
	if id == "" || title == "" {
		return Article{}, false
	}

	a := Article{
		ID:        id,
		Title:     title,
		Published: true,
		Category:  source,
	}

	if len(item.Categories) > 0 {
		a.Category = strings.TrimSpace(item.Categories[0])
		for _, c := range item.Categories {
			if t := strings.TrimSpace(c); t != "" {
				a.Tags = append(a.Tags, t)
			}
		}
	}

	if item.PublishedParsed != nil {
		a.CreatedAt = *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		a.UpdatedAt = *item.UpdatedParsed
	} else {
		a.UpdatedAt = a.CreatedAt
	}
	if item.Image != nil {
		a.ImageURL = item.Image.URL
	}

	pageURL, _ := url.Parse(item.Link)
	if item.Description != "" {
		a.Excerpt = htmlToText(item.Description, pageURL)
	}
	if item.Content != "" {
		a.Content = htmlToText(item.Content, pageURL)
	} else {
		a.Content = a.Excerpt
	}

	if a.Content == "" && fl.fetchContent && item.Link != "" {
		if text, err := fl.fetch(item.Link); err != nil {
			log.Printf("Fetching %s: %v", item.Link, err)
		} else {
			a.Content = text
		}
	}
	return a, true
}

func (fl *FeedLoader) fetch(articleURL string) (string, error) {
	req, err := http.NewRequest("GET", articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "AIMindset/1.0 (article cache)")

	resp, err := fl.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	parsedURL, _ := url.Parse(articleURL)
	doc, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.TextContent), nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}

// htmlToText extracts readable text from an HTML fragment, falling back to
// plain tag stripping for fragments readability rejects.
func htmlToText(fragment string, pageURL *url.URL) string {
	if !strings.Contains(fragment, "<") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	if pageURL == nil {
		pageURL = &url.URL{}
	}
	doc, err := readability.FromReader(strings.NewReader(fragment), pageURL)
	if err == nil {
		if text := strings.Join(strings.Fields(doc.TextContent), " "); text != "" {
			return text
		}
	}
	return StripHTML(fragment)
}

// StripHTML removes tags and decodes the common entities.
func StripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	return strings.Join(strings.Fields(s), " ")
}

func sourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
