// Package chunks delivers article text to the translating agent one
// bounded chunk at a time. The first request for an article triggers
// extraction and chunking; the result is cached briefly so sequential
// requests and idempotent retries are cheap. Every chunk carries the
// glossary terms it contains and the standing translation instruction,
// because the agent's context may not retain either across chunks.
package chunks

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/chunker"
	"github.com/valpere/transpipe/internal/extract"
	"github.com/valpere/transpipe/internal/glossary"
	"github.com/valpere/transpipe/internal/store"
)

// Delivery error codes.
const (
	CodeArticleNotFound = "ARTICLE_NOT_FOUND"
	CodePaywalled       = "PAYWALLED"
	CodeNotCached       = "NOT_CACHED"
	CodeNoSource        = "NO_SOURCE"
	CodeExtractFailed   = "EXTRACT_FAILED"
	CodeBadIndex        = "BAD_INDEX"
)

// Instruction is repeated verbatim with every delivered chunk.
const Instruction = "Translate this chunk completely and faithfully. " +
	"Preserve paragraph breaks, every number and statistic, and all citations exactly as they appear. " +
	"Use the required glossary translations listed below. Do not summarize, condense, or omit anything."

// Error is a delivery failure with a stable machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// AsError extracts a delivery *Error from err, if it is one.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Chunk is one delivered unit of work.
type Chunk struct {
	ArticleID     string                          `json:"article_id"`
	Index         int                             `json:"index"`
	Total         int                             `json:"total"`
	Text          string                          `json:"text,omitempty"`
	WordCount     int                             `json:"word_count"`
	GlossaryTerms map[string]glossary.Translation `json:"glossary_terms,omitempty"`
	Instruction   string                          `json:"instruction,omitempty"`
	Complete      bool                            `json:"complete"`
	Extraction    *ExtractionInfo                 `json:"extraction,omitempty"`
}

// ExtractionInfo summarizes how the article's text was obtained. It is
// reported once delivery is complete so the reviewer can weigh warnings
// before validating.
type ExtractionInfo struct {
	Method   string   `json:"method"`
	Warnings []string `json:"warnings,omitempty"`
}

type cached struct {
	chunks  []string
	info    *ExtractionInfo
	addedAt time.Time
}

// Service extracts, chunks, and caches article text for delivery.
type Service struct {
	engine *extract.Engine
	chk    *chunker.Chunker
	ttl    time.Duration
	log    *zap.Logger

	mu    sync.Mutex
	cache map[string]*cached
}

// NewService returns a delivery Service. A non-positive ttl disables
// expiry.
func NewService(engine *extract.Engine, chk *chunker.Chunker, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		engine: engine,
		chk:    chk,
		ttl:    ttl,
		log:    log,
		cache:  make(map[string]*cached),
	}
}

// Get returns chunk index for the article, running extraction on the
// first request. Indexes are zero-based; requesting any index at or past
// the last chunk returns the completion marker with the extraction
// summary instead of text, so an agent that overshoots still learns
// delivery is done. Re-requesting any served index returns the
// identical chunk.
func (s *Service) Get(article *store.Article, index int, gloss *glossary.Glossary) (*Chunk, error) {
	if index < 0 {
		return nil, &Error{Code: CodeBadIndex, Message: fmt.Sprintf("chunk index %d is negative", index)}
	}

	entry, err := s.load(article)
	if err != nil {
		return nil, err
	}

	if index >= len(entry.chunks) {
		return &Chunk{
			ArticleID:  article.ID,
			Index:      index,
			Total:      len(entry.chunks),
			Complete:   true,
			Extraction: entry.info,
		}, nil
	}

	text := entry.chunks[index]
	c := &Chunk{
		ArticleID:   article.ID,
		Index:       index,
		Total:       len(entry.chunks),
		Text:        text,
		WordCount:   len(strings.Fields(text)),
		Instruction: Instruction,
	}
	if gloss != nil {
		c.GlossaryTerms = gloss.FindTerms(text)
	}
	return c, nil
}

// Extraction returns how the article's text was obtained, extracting it
// on first use. The result is recorded on the article so extraction
// provenance survives cache expiry.
func (s *Service) Extraction(article *store.Article) (*ExtractionInfo, error) {
	entry, err := s.load(article)
	if err != nil {
		return nil, err
	}
	return entry.info, nil
}

// SourceText returns the full extracted text of an article, as the
// concatenation of its chunks. The quality gate compares the translation
// against exactly what was delivered.
func (s *Service) SourceText(article *store.Article) (string, error) {
	entry, err := s.load(article)
	if err != nil {
		return "", err
	}
	return strings.Join(entry.chunks, "\n\n"), nil
}

// Invalidate drops the cached chunks for an article. Called after a save
// or skip, when the text will not be requested again.
func (s *Service) Invalidate(articleID string) {
	s.mu.Lock()
	delete(s.cache, articleID)
	s.mu.Unlock()
}

func (s *Service) load(article *store.Article) (*cached, error) {
	s.mu.Lock()
	entry, ok := s.cache[article.ID]
	if ok && s.ttl > 0 && time.Since(entry.addedAt) > s.ttl {
		delete(s.cache, article.ID)
		ok = false
	}
	s.mu.Unlock()
	if ok {
		return entry, nil
	}

	result, err := s.engine.Extract(article.ID)
	if errors.Is(err, extract.ErrNotCached) {
		return nil, s.missingDocError(article)
	}
	if err != nil {
		return nil, err
	}
	if !result.Usable {
		return nil, &Error{
			Code:    CodeExtractFailed,
			Message: fmt.Sprintf("extraction failed: %s", strings.Join(result.Defects, ", ")),
		}
	}

	parts := s.chk.Split(result.Text)
	entry = &cached{
		chunks:  parts,
		info:    &ExtractionInfo{Method: result.Method, Warnings: result.Warnings()},
		addedAt: time.Now(),
	}

	s.mu.Lock()
	s.cache[article.ID] = entry
	s.mu.Unlock()

	s.log.Info("article chunked for delivery",
		zap.String("article_id", article.ID),
		zap.Int("chunks", len(parts)),
		zap.String("method", result.Method),
		zap.Strings("warnings", entry.info.Warnings))
	return entry, nil
}

// missingDocError distinguishes why no document is available: a known
// paywall, a fetchable source that was never cached, or no source at all.
func (s *Service) missingDocError(article *store.Article) *Error {
	switch {
	case article.Paywalled:
		return &Error{
			Code:    CodePaywalled,
			Message: fmt.Sprintf("article %s is paywalled and no accessible copy is cached", article.ID),
		}
	case article.SourceURL != "":
		return &Error{
			Code:    CodeNotCached,
			Message: fmt.Sprintf("article %s has a source url but no cached document; fetch and cache it first", article.ID),
		}
	default:
		return &Error{
			Code:    CodeNoSource,
			Message: fmt.Sprintf("article %s has no source url and no cached document", article.ID),
		}
	}
}
