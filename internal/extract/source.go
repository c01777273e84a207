package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalSource resolves article identifiers to cached source documents on
// disk. A preprocessed .txt artifact always takes precedence over the raw
// document formats.
type LocalSource struct {
	dir string
}

// NewLocalSource returns a document source rooted at dir.
func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{dir: dir}
}

// extensions in order of preference.
var cachedExtensions = []string{".txt", ".pdf", ".html"}

// CachedPath returns the cached document path for an article, or ok=false
// when nothing is cached.
func (s *LocalSource) CachedPath(articleID string) (string, bool) {
	for _, ext := range cachedExtensions {
		path := filepath.Join(s.dir, articleID+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Cache stores fetched content for an article, picking the extension from
// the content itself (falling back to the source URL suffix).
func (s *LocalSource) Cache(articleID string, content []byte, sourceURL string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	ext := ".txt"
	switch {
	case bytes.HasPrefix(content, []byte("%PDF")) || strings.HasSuffix(sourceURL, ".pdf"):
		ext = ".pdf"
	case bytes.Contains(bytes.ToLower(firstN(content, 1000)), []byte("<html")):
		ext = ".html"
	}

	path := filepath.Join(s.dir, articleID+ext)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cached document: %w", err)
	}
	return path, nil
}

func firstN(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}
