// Package pipeline orchestrates the supervised translation workflow: it
// hands out articles, serves their text in chunks, validates proposed
// classifications, gates translations quantitatively, and commits
// accepted work. The translating agent only ever talks to this package;
// everything underneath is an implementation detail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/chunker"
	"github.com/valpere/transpipe/internal/chunks"
	"github.com/valpere/transpipe/internal/config"
	"github.com/valpere/transpipe/internal/detector"
	"github.com/valpere/transpipe/internal/extract"
	"github.com/valpere/transpipe/internal/glossary"
	"github.com/valpere/transpipe/internal/lang"
	"github.com/valpere/transpipe/internal/quality"
	"github.com/valpere/transpipe/internal/session"
	"github.com/valpere/transpipe/internal/store"
	"github.com/valpere/transpipe/internal/taxonomy"
	"github.com/valpere/transpipe/internal/token"
)

// Save failure codes.
const (
	CodeInvalidClassification = "INVALID_CLASSIFICATION"
	CodeInvalidFlags          = "INVALID_FLAGS"
	CodeInvalidToken          = "INVALID_TOKEN"
	CodeQualityRejected       = "QUALITY_REJECTED"
)

// Pipeline wires the stores and checkers into the agent-facing
// operations.
type Pipeline struct {
	cfg    *config.Config
	st     *store.Store
	gov    *session.Governor
	tokens *token.Manager
	deliv  *chunks.Service
	gate   *quality.Gate
	lem    *lang.Lemmatizer
	log    *zap.Logger

	mu    sync.Mutex
	tax   *taxonomy.Taxonomy
	gloss *glossary.Glossary
	// blockingSeen tracks, per in-flight article, which blocking quality
	// codes have already been reported to the agent. A rejection that
	// repeats a reported code means the agent is not converging and must
	// skip.
	blockingSeen map[string]map[string]struct{}
}

// New builds the full pipeline from configuration. The language tooling
// (segmenters, lemma dictionaries, language detector) loads once here;
// the taxonomy and glossary load now and reload on every article
// selection.
func New(cfg *config.Config, st *store.Store, log *zap.Logger) (*Pipeline, error) {
	lem, err := lang.NewLemmatizer()
	if err != nil {
		return nil, err
	}
	sourceSeg, err := lang.NewSegmenter(nil)
	if err != nil {
		return nil, err
	}
	targetSeg, err := lang.NewSegmenter(cfg.Quality.TargetAbbreviations)
	if err != nil {
		return nil, err
	}

	engine := extract.NewEngine(extract.NewLocalSource(cfg.Dirs.Cache), log)
	chk := chunker.New(sourceSeg, cfg.Chunks.TargetParagraphs, cfg.Chunks.MaxParagraphWords, cfg.Chunks.SplitAtWords)

	p := &Pipeline{
		cfg:    cfg,
		st:     st,
		gov:    session.NewGovernor(st, cfg.Session.DefaultInterval),
		tokens: token.NewManager(st, cfg.Tokens.TTL),
		deliv:  chunks.NewService(engine, chk, cfg.Chunks.CacheTTL, log),
		gate: quality.NewGate(sourceSeg, targetSeg, detector.New(), cfg.Langs.Target,
			cfg.Quality.WordRatioMin, cfg.Quality.WordRatioMax, cfg.Quality.TermRecallMin),
		lem:          lem,
		log:          log,
		blockingSeen: make(map[string]map[string]struct{}),
	}
	if err := p.reloadVocabulary(); err != nil {
		return nil, err
	}
	return p, nil
}

// Tokens exposes the token manager for maintenance jobs.
func (p *Pipeline) Tokens() *token.Manager { return p.tokens }

// reloadVocabulary re-reads the taxonomy and glossary files so edits
// made between articles take effect without a restart.
func (p *Pipeline) reloadVocabulary() error {
	tax, err := taxonomy.Load(p.cfg.Data.Taxonomy)
	if err != nil {
		return err
	}
	gloss, err := glossary.Load(p.cfg.Data.Glossary, p.lem, p.cfg.Langs.Source, p.cfg.Langs.Target)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.tax = tax
	p.gloss = gloss
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) vocabulary() (*taxonomy.Taxonomy, *glossary.Glossary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tax, p.gloss
}

// Selection is the response to a next-article request.
type Selection struct {
	Complete        bool              `json:"complete"`
	PauseDue        bool              `json:"pause_due"`
	Session         *session.Status   `json:"session"`
	Article         *store.Article    `json:"article,omitempty"`
	Taxonomy        *taxonomy.Summary `json:"taxonomy,omitempty"`
	GlossaryVersion string            `json:"glossary_version,omitempty"`
}

// SelectNext picks the article to work on. It reloads the vocabulary
// files first, and refuses to hand out work while a review pause is due.
// When the catalog is exhausted the selection is marked complete.
func (p *Pipeline) SelectNext(ctx context.Context) (*Selection, error) {
	if err := p.reloadVocabulary(); err != nil {
		return nil, err
	}

	status, err := p.gov.Status(ctx)
	if err != nil {
		return nil, err
	}
	if status.PauseDue {
		p.log.Info("review pause due",
			zap.Int("sessions_completed", status.SessionsCompleted),
			zap.Int("interval", status.ReviewInterval))
		return &Selection{PauseDue: true, Session: status}, nil
	}

	article, err := p.st.NextArticle(ctx)
	if errors.Is(err, store.ErrNoPendingArticles) {
		return &Selection{Complete: true, Session: status}, nil
	}
	if err != nil {
		return nil, err
	}

	tax, gloss := p.vocabulary()
	summary := tax.Summary()
	p.log.Info("article selected",
		zap.String("article_id", article.ID),
		zap.String("status", article.Status))
	return &Selection{
		Session:         status,
		Article:         article,
		Taxonomy:        &summary,
		GlossaryVersion: gloss.Version(),
	}, nil
}

// RequestChunk serves one chunk of an article's text.
func (p *Pipeline) RequestChunk(ctx context.Context, articleID string, index int) (*chunks.Chunk, error) {
	article, err := p.st.GetArticle(ctx, articleID)
	if errors.Is(err, store.ErrArticleNotFound) {
		return nil, &chunks.Error{
			Code:    chunks.CodeArticleNotFound,
			Message: fmt.Sprintf("no article with id %s", articleID),
		}
	}
	if err != nil {
		return nil, err
	}
	_, gloss := p.vocabulary()
	chunk, err := p.deliv.Get(article, index, gloss)
	if err != nil {
		return nil, err
	}
	// Record extraction provenance once, when the first chunk goes out.
	if index == 0 && article.ExtractionMethod == "" {
		if info, err := p.deliv.Extraction(article); err == nil {
			if err := p.st.SetExtraction(ctx, article.ID, info.Method, info.Warnings); err != nil {
				p.log.Warn("failed to record extraction",
					zap.String("article_id", article.ID), zap.Error(err))
			}
		}
	}
	return chunk, nil
}

// Skip abandons an article with a taxonomy flag code and a free-text
// reason. Its cached text and any outstanding tokens are discarded; the
// session counter is untouched because no review happened.
func (p *Pipeline) Skip(ctx context.Context, articleID, flagCode, reason string) error {
	if flagCode == "" {
		return fmt.Errorf("a skip flag code is required")
	}
	tax, _ := p.vocabulary()
	if !tax.IsValidFlag(flagCode) {
		return fmt.Errorf("unknown skip flag code %q", flagCode)
	}
	if reason == "" {
		return fmt.Errorf("a skip reason is required")
	}
	if err := p.st.MarkSkipped(ctx, articleID, flagCode, reason); err != nil {
		return err
	}
	p.deliv.Invalidate(articleID)
	p.clearRetryState(articleID)
	p.log.Info("article skipped",
		zap.String("article_id", articleID),
		zap.String("flag", flagCode),
		zap.String("reason", reason))
	return nil
}

// Progress reports catalog counts and today's session state.
type Progress struct {
	Total      int             `json:"total"`
	Pending    int             `json:"pending"`
	InProgress int             `json:"in_progress"`
	Translated int             `json:"translated"`
	Skipped    int             `json:"skipped"`
	Session    *session.Status `json:"session"`
}

// Progress returns the catalog and session overview.
func (p *Pipeline) Progress(ctx context.Context) (*Progress, error) {
	counts, err := p.st.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	status, err := p.gov.Status(ctx)
	if err != nil {
		return nil, err
	}
	pr := &Progress{
		Pending:    counts[store.StatusPending],
		InProgress: counts[store.StatusInProgress],
		Translated: counts[store.StatusTranslated],
		Skipped:    counts[store.StatusSkipped],
		Session:    status,
	}
	pr.Total = pr.Pending + pr.InProgress + pr.Translated + pr.Skipped
	return pr, nil
}

// SetReviewInterval updates the pause interval.
func (p *Pipeline) SetReviewInterval(ctx context.Context, interval int) error {
	return p.gov.SetInterval(ctx, interval)
}

// ResetSession acknowledges a pause and zeroes today's counter.
func (p *Pipeline) ResetSession(ctx context.Context) (*session.Status, error) {
	if err := p.gov.Reset(ctx); err != nil {
		return nil, err
	}
	return p.gov.Status(ctx)
}

func (p *Pipeline) clearRetryState(articleID string) {
	p.mu.Lock()
	delete(p.blockingSeen, articleID)
	p.mu.Unlock()
}

// recordBlocking merges the latest blocking codes into the per-article
// history and reports whether any of them was already reported for this
// article. A recurring code means the retry did not fix the defect it
// named, so the agent must skip rather than loop.
func (p *Pipeline) recordBlocking(articleID string, codes []string) (repeat bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen, ok := p.blockingSeen[articleID]
	if !ok {
		seen = make(map[string]struct{})
		p.blockingSeen[articleID] = seen
	}

	for _, c := range codes {
		if _, dup := seen[c]; dup {
			repeat = true
		}
		seen[c] = struct{}{}
	}
	return repeat
}
