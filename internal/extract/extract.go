// Package extract turns cached source documents into plain text through a
// fallback chain of extractors, classifying observable defects along the
// way. The first extractor producing text without blocking defects wins.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrNotCached is returned when no document is cached for an article.
var ErrNotCached = errors.New("no cached document for article")

// Result is the outcome of one extraction attempt chain.
type Result struct {
	Text    string
	Method  string
	Defects []string
	Usable  bool
}

// Warnings returns only the advisory defects.
func (r *Result) Warnings() []string {
	var out []string
	for _, d := range r.Defects {
		if !IsBlockingDefect(d) {
			out = append(out, d)
		}
	}
	return out
}

// Engine runs the extraction fallback chain over locally cached documents.
type Engine struct {
	source *LocalSource
	log    *zap.Logger
}

// NewEngine returns an Engine reading from source.
func NewEngine(source *LocalSource, log *zap.Logger) *Engine {
	return &Engine{source: source, log: log}
}

// Source exposes the underlying document source.
func (e *Engine) Source() *LocalSource { return e.source }

// Extract resolves the cached document for an article and extracts its
// text. A preprocessed .txt artifact is trusted and bypasses the chain;
// PDFs go through both PDF strategies; HTML through the HTML converter.
// If every attempt yields only blocking defects the result is unusable
// and carries the aggregate defect list.
func (e *Engine) Extract(articleID string) (*Result, error) {
	path, ok := e.source.CachedPath(articleID)
	if !ok {
		return nil, ErrNotCached
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read preprocessed text: %w", err)
		}
		text := string(raw)
		var advisory []string
		for _, d := range DetectDefects(text) {
			if !IsBlockingDefect(d) {
				advisory = append(advisory, d)
			}
		}
		e.log.Info("using preprocessed text",
			zap.String("article_id", articleID),
			zap.Strings("defects", advisory))
		return &Result{Text: text, Method: "preprocessed", Defects: advisory, Usable: true}, nil
	case ".html":
		return e.runChain(articleID, path, []extractor{{"html", extractHTML}}), nil
	default:
		return e.runChain(articleID, path, []extractor{
			{"pdf-text", extractPDFPlain},
			{"pdf-rows", extractPDFRows},
		}), nil
	}
}

type extractor struct {
	name string
	fn   func(path string) (string, error)
}

func (e *Engine) runChain(articleID, path string, chain []extractor) *Result {
	aggregate := make(map[string]struct{})
	attempted := false

	for _, ex := range chain {
		text, err := ex.fn(path)
		if err != nil {
			e.log.Warn("extractor failed",
				zap.String("article_id", articleID),
				zap.String("extractor", ex.name),
				zap.Error(err))
			continue
		}
		attempted = true

		defects := DetectDefects(text)
		if !HasBlocking(defects) {
			e.log.Info("extraction succeeded",
				zap.String("article_id", articleID),
				zap.String("extractor", ex.name),
				zap.Strings("defects", defects))
			return &Result{Text: text, Method: ex.name, Defects: defects, Usable: true}
		}

		e.log.Warn("extractor produced unusable text",
			zap.String("article_id", articleID),
			zap.String("extractor", ex.name),
			zap.Strings("defects", defects))
		for _, d := range defects {
			aggregate[d] = struct{}{}
		}
	}

	defects := []string{DefectExtractFailed}
	if attempted {
		for d := range aggregate {
			defects = append(defects, d)
		}
	}
	e.log.Error("all extractors failed", zap.String("article_id", articleID))
	return &Result{Method: "none", Defects: defects, Usable: false}
}
