package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Article lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusTranslated = "translated"
	StatusSkipped    = "skipped"
)

// ErrArticleNotFound is returned when an article id is unknown.
var ErrArticleNotFound = errors.New("article not found")

// ErrNoPendingArticles is returned by NextArticle when the catalog holds
// no more translatable work.
var ErrNoPendingArticles = errors.New("no pending articles")

// Article is one catalog entry. ExtractionMethod and ExtractionFlags are
// recorded when the text is first extracted for delivery.
type Article struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	SourceURL        string    `json:"source_url,omitempty"`
	DOI              string    `json:"doi,omitempty"`
	Status           string    `json:"status"`
	Paywalled        bool      `json:"paywalled"`
	SkipFlag         string    `json:"skip_flag,omitempty"`
	SkipReason       string    `json:"skip_reason,omitempty"`
	ExtractionMethod string    `json:"extraction_method,omitempty"`
	ExtractionFlags  []string  `json:"extraction_flags,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AddArticle inserts a pending article. Inserting an existing id is an
// error so intake never silently clobbers catalog state.
func (s *Store) AddArticle(ctx context.Context, a *Article) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, source_url, doi, status, paywalled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, normalizeText(a.Title), a.SourceURL, a.DOI, StatusPending, a.Paywalled, now, now)
	if err != nil {
		return fmt.Errorf("failed to add article %s: %w", a.ID, err)
	}
	return nil
}

// GetArticle returns one article by id.
func (s *Store) GetArticle(ctx context.Context, id string) (*Article, error) {
	var a Article
	var sourceURL, doi, skipFlag, skipReason, exMethod, exFlags sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, source_url, doi, status, paywalled, skip_flag, skip_reason,
		        extraction_method, extraction_flags, created_at, updated_at
		 FROM articles WHERE id = ?`, id).
		Scan(&a.ID, &a.Title, &sourceURL, &doi, &a.Status, &a.Paywalled, &skipFlag, &skipReason,
			&exMethod, &exFlags, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", id, err)
	}
	a.SourceURL = sourceURL.String
	a.DOI = doi.String
	a.SkipFlag = skipFlag.String
	a.SkipReason = skipReason.String
	a.ExtractionMethod = exMethod.String
	a.ExtractionFlags = splitFlags(exFlags.String)
	return &a, nil
}

func splitFlags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// NextArticle returns the article to work on and marks it in progress. An
// article already in progress takes priority over pending ones, so an
// interrupted session resumes where it stopped.
func (s *Store) NextArticle(ctx context.Context) (*Article, error) {
	for _, status := range []string{StatusInProgress, StatusPending} {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM articles WHERE status = ? ORDER BY created_at, id LIMIT 1`,
			status).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select next article: %w", err)
		}
		if status == StatusPending {
			if err := s.setStatus(ctx, id, StatusInProgress); err != nil {
				return nil, err
			}
		}
		return s.GetArticle(ctx, id)
	}
	return nil, ErrNoPendingArticles
}

// MarkSkipped moves an article to skipped with a flag code and a free-text
// reason, and discards its tokens.
func (s *Store) MarkSkipped(ctx context.Context, id, flagCode, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET status = ?, skip_flag = ?, skip_reason = ?, updated_at = ? WHERE id = ?`,
		StatusSkipped, flagCode, reason, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark article %s skipped: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArticleNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM validation_tokens WHERE article_id = ?`, id)
	return err
}

// SetExtraction records how an article's text was obtained and which
// defect codes the extraction raised.
func (s *Store) SetExtraction(ctx context.Context, id, method string, flags []string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET extraction_method = ?, extraction_flags = ?, updated_at = ? WHERE id = ?`,
		method, strings.Join(flags, ","), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record extraction for article %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArticleNotFound
	}
	return nil
}

func (s *Store) setStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update article %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArticleNotFound
	}
	return nil
}

// StatusCounts returns how many articles sit in each status.
func (s *Store) StatusCounts(ctx context.Context) (map[string]int, error) {
	query, args, err := s.sb.
		Select("status", "COUNT(*)").
		From("articles").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListArticles returns articles, optionally filtered by status, newest
// first.
func (s *Store) ListArticles(ctx context.Context, status string) ([]Article, error) {
	b := s.sb.
		Select("id", "title", "source_url", "doi", "status", "paywalled", "skip_flag", "skip_reason", "created_at", "updated_at").
		From("articles").
		OrderBy("created_at DESC", "id")
	if status != "" {
		b = b.Where(sq.Eq{"status": status})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		var sourceURL, doi, skipFlag, skipReason sql.NullString
		if err := rows.Scan(&a.ID, &a.Title, &sourceURL, &doi, &a.Status, &a.Paywalled, &skipFlag, &skipReason, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.SourceURL = sourceURL.String
		a.DOI = doi.String
		a.SkipFlag = skipFlag.String
		a.SkipReason = skipReason.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// SavedTranslation is a persisted translation row. TranslatedText is
// empty when only the title and summary were translatable.
type SavedTranslation struct {
	ArticleID         string    `json:"article_id"`
	TargetLanguage    string    `json:"target_language"`
	TranslatedTitle   string    `json:"translated_title"`
	TranslatedSummary string    `json:"translated_summary,omitempty"`
	TranslatedText    string    `json:"translated_text,omitempty"`
	GlossaryVersion   string    `json:"glossary_version"`
	Flags             string    `json:"flags"`
	Method            string    `json:"method,omitempty"`
	Voice             string    `json:"voice,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// SaveRequest is everything persisted atomically when a reviewed
// translation is accepted. TranslatedText is the full body; leave it
// empty for articles whose body was inaccessible.
type SaveRequest struct {
	ArticleID           string
	TargetLanguage      string
	TranslatedTitle     string
	TranslatedSummary   string
	TranslatedText      string
	GlossaryVersion     string
	Flags               []FlagRecord
	Method              string
	Voice               string
	PrimaryCategory     string
	SecondaryCategories []string
	Keywords            []string
	TokenID             string
	Day                 string // local calendar day, for the session counter
}

// FlagRecord is one review flag persisted with a translation.
type FlagRecord struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// ErrTokenSpent is returned when the validation token was already used,
// expired out of the table, or never existed.
var ErrTokenSpent = errors.New("validation token already spent or unknown")

// SaveTranslated persists an accepted translation in one transaction:
// the translation row, the article status change, its classification,
// the token consumption, and the session increment all commit together
// or not at all.
func (s *Store) SaveTranslated(ctx context.Context, req *SaveRequest) error {
	flags, err := json.Marshal(req.Flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	// Consume the token first; a spent token aborts before anything is
	// written.
	res, err := tx.ExecContext(ctx,
		`UPDATE validation_tokens SET used = TRUE, used_at = ? WHERE id = ? AND used = FALSE AND expires_at > ?`,
		now, req.TokenID, now)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTokenSpent
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE articles SET status = ?, updated_at = ? WHERE id = ?`,
		StatusTranslated, now, req.ArticleID)
	if err != nil {
		return fmt.Errorf("failed to update article status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArticleNotFound
	}

	var summary, fullText sql.NullString
	if v := normalizeText(req.TranslatedSummary); v != "" {
		summary = sql.NullString{String: v, Valid: true}
	}
	if v := normalizeText(req.TranslatedText); v != "" {
		fullText = sql.NullString{String: v, Valid: true}
	}

	id := fmt.Sprintf("%s_%s", req.ArticleID, req.TargetLanguage)
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO translations
		 (id, article_id, target_language, translated_title, translated_summary, translated_text,
		  glossary_version, flags, method, voice, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.ArticleID, req.TargetLanguage, normalizeText(req.TranslatedTitle), summary, fullText,
		req.GlossaryVersion, string(flags), req.Method, req.Voice, now)
	if err != nil {
		return fmt.Errorf("failed to save translation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM article_categories WHERE article_id = ?`, req.ArticleID); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO article_categories (article_id, category, is_primary) VALUES (?, ?, TRUE)`,
		req.ArticleID, req.PrimaryCategory); err != nil {
		return fmt.Errorf("failed to save primary category: %w", err)
	}
	for _, cat := range req.SecondaryCategories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO article_categories (article_id, category, is_primary) VALUES (?, ?, FALSE)`,
			req.ArticleID, cat); err != nil {
			return fmt.Errorf("failed to save secondary category: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM article_keywords WHERE article_id = ?`, req.ArticleID); err != nil {
		return fmt.Errorf("failed to clear keywords: %w", err)
	}
	for _, kw := range req.Keywords {
		kw = normalizeText(kw)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO keywords (keyword) VALUES (?)`, kw); err != nil {
			return fmt.Errorf("failed to save keyword: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO article_keywords (article_id, keyword_id)
			 SELECT ?, id FROM keywords WHERE keyword = ?`,
			req.ArticleID, kw); err != nil {
			return fmt.Errorf("failed to link keyword: %w", err)
		}
	}

	if err := incrementSessionsTx(ctx, tx, req.Day); err != nil {
		return err
	}

	return tx.Commit()
}

// GetTranslation returns the saved translation for an article and target
// language.
func (s *Store) GetTranslation(ctx context.Context, articleID, targetLanguage string) (*SavedTranslation, error) {
	var t SavedTranslation
	var summary, fullText, method, voice sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT article_id, target_language, translated_title, translated_summary, translated_text,
		        glossary_version, flags, method, voice, created_at
		 FROM translations WHERE article_id = ? AND target_language = ?`,
		articleID, targetLanguage).
		Scan(&t.ArticleID, &t.TargetLanguage, &t.TranslatedTitle, &summary, &fullText,
			&t.GlossaryVersion, &t.Flags, &method, &voice, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load translation: %w", err)
	}
	t.TranslatedSummary = summary.String
	t.TranslatedText = fullText.String
	t.Method = method.String
	t.Voice = voice.String
	return &t, nil
}

// Classification is the stored classification of one article.
type Classification struct {
	PrimaryCategory     string   `json:"primary_category"`
	SecondaryCategories []string `json:"secondary_categories,omitempty"`
	Keywords            []string `json:"keywords,omitempty"`
}

// GetClassification returns the stored categories and keywords for an
// article.
func (s *Store) GetClassification(ctx context.Context, articleID string) (*Classification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, is_primary FROM article_categories WHERE article_id = ? ORDER BY category`,
		articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	var c Classification
	for rows.Next() {
		var cat string
		var primary bool
		if err := rows.Scan(&cat, &primary); err != nil {
			return nil, err
		}
		if primary {
			c.PrimaryCategory = cat
		} else {
			c.SecondaryCategories = append(c.SecondaryCategories, cat)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kwRows, err := s.db.QueryContext(ctx,
		`SELECT k.keyword FROM keywords k
		 JOIN article_keywords ak ON ak.keyword_id = k.id
		 WHERE ak.article_id = ? ORDER BY k.keyword`,
		articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load keywords: %w", err)
	}
	defer kwRows.Close()

	for kwRows.Next() {
		var kw string
		if err := kwRows.Scan(&kw); err != nil {
			return nil, err
		}
		c.Keywords = append(c.Keywords, kw)
	}
	return &c, kwRows.Err()
}
