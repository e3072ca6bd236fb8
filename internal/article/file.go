package article

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LoadFile reads a JSON array of article rows from disk.
func LoadFile(path string) ([]Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening articles file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a JSON array of article rows.
func Decode(r io.Reader) ([]Article, error) {
	var articles []Article
	if err := json.NewDecoder(r).Decode(&articles); err != nil {
		return nil, fmt.Errorf("decoding articles: %w", err)
	}
	return articles, nil
}
