package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobiSchelling/AIMindset/internal/article"
)

const allKey = "all"

// CacheArticles stores the full article list.
func (s *Store) CacheArticles(articles []article.Article, opts ...SetOption) error {
	return s.Set(Articles, allKey, articles, opts...)
}

// GetArticles returns the cached article list, or nil on a miss.
func (s *Store) GetArticles() ([]article.Article, error) {
	var articles []article.Article
	ok, err := s.Get(Articles, allKey, &articles)
	if err != nil || !ok {
		return nil, err
	}
	return articles, nil
}

// CacheArticle stores a single article under its id.
func (s *Store) CacheArticle(a article.Article, opts ...SetOption) error {
	if a.ID == "" {
		return fmt.Errorf("caching article without id")
	}
	return s.Set(Articles, articleKey(a.ID), a, append([]SetOption{WithTags("article", a.Category)}, opts...)...)
}

// GetArticle returns a cached article, or nil on a miss.
func (s *Store) GetArticle(id string) (*article.Article, error) {
	var a article.Article
	ok, err := s.Get(Articles, articleKey(id), &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

// articleKey keeps single articles from colliding with the list entry.
func articleKey(id string) string {
	return "article:" + id
}

// CacheSearchResults stores a result set keyed by a hash of the query.
func (s *Store) CacheSearchResults(query string, results any, opts ...SetOption) error {
	return s.Set(Searches, Hash(query), results, opts...)
}

// GetSearchResults decodes a cached result set for query into dst.
func (s *Store) GetSearchResults(query string, dst any) (bool, error) {
	return s.Get(Searches, Hash(query), dst)
}

// FilterKey hashes the JSON encoding of a filter value.
func FilterKey(filter any) (string, error) {
	b, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("encoding filter: %w", err)
	}
	return Hash(string(b)), nil
}

// CacheFilterResults stores a result set keyed by a hash of the filter.
func (s *Store) CacheFilterResults(filter, results any, opts ...SetOption) error {
	key, err := FilterKey(filter)
	if err != nil {
		return err
	}
	return s.Set(Filters, key, results, opts...)
}

// GetFilterResults decodes a cached result set for filter into dst.
func (s *Store) GetFilterResults(filter, dst any) (bool, error) {
	key, err := FilterKey(filter)
	if err != nil {
		return false, err
	}
	return s.Get(Filters, key, dst)
}

// CacheCategories stores the category list.
func (s *Store) CacheCategories(categories []string, opts ...SetOption) error {
	return s.Set(Categories, allKey, categories, opts...)
}

// GetCategories returns the cached category list, or nil on a miss.
func (s *Store) GetCategories() ([]string, error) {
	var categories []string
	ok, err := s.Get(Categories, allKey, &categories)
	if err != nil || !ok {
		return nil, err
	}
	return categories, nil
}

// Image is a cached binary blob.
type Image struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// CacheImage stores an image blob keyed by a hash of its URL.
func (s *Store) CacheImage(img Image, opts ...SetOption) error {
	return s.Set(Images, Hash(img.URL), img, opts...)
}

// GetImage returns the cached image for url, or nil on a miss.
func (s *Store) GetImage(url string) (*Image, error) {
	var img Image
	ok, err := s.Get(Images, Hash(url), &img)
	if err != nil || !ok {
		return nil, err
	}
	return &img, nil
}

// SetMeta stores a metadata value that never expires in practice.
func (s *Store) SetMeta(key string, value any) error {
	return s.Set(Metadata, key, value, WithTTL(100*365*24*time.Hour))
}

// GetMeta decodes a metadata value into dst.
func (s *Store) GetMeta(key string, dst any) (bool, error) {
	return s.Get(Metadata, key, dst)
}
