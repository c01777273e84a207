// Package store is the sqlite persistence layer: the article catalog,
// saved translations with their classification, validation tokens, and
// the daily session counter. One database file holds everything so a
// save can be a single transaction.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite handles one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source_url TEXT,
		doi TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		paywalled BOOLEAN NOT NULL DEFAULT FALSE,
		skip_flag TEXT,
		skip_reason TEXT,
		extraction_method TEXT,
		extraction_flags TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- translated_text is the full body and stays NULL when only the
	-- title and summary could be translated (paywalled articles).
	CREATE TABLE IF NOT EXISTS translations (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		target_language TEXT NOT NULL,
		translated_title TEXT NOT NULL,
		translated_summary TEXT,
		translated_text TEXT,
		glossary_version TEXT NOT NULL,
		flags TEXT NOT NULL DEFAULT '[]',
		method TEXT,
		voice TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(article_id, target_language),
		FOREIGN KEY (article_id) REFERENCES articles(id)
	);

	CREATE TABLE IF NOT EXISTS article_categories (
		article_id TEXT NOT NULL,
		category TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (article_id, category),
		FOREIGN KEY (article_id) REFERENCES articles(id)
	);

	CREATE TABLE IF NOT EXISTS keywords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		keyword TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS article_keywords (
		article_id TEXT NOT NULL,
		keyword_id INTEGER NOT NULL,
		PRIMARY KEY (article_id, keyword_id),
		FOREIGN KEY (article_id) REFERENCES articles(id),
		FOREIGN KEY (keyword_id) REFERENCES keywords(id)
	);

	CREATE TABLE IF NOT EXISTS validation_tokens (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		payload_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		used BOOLEAN NOT NULL DEFAULT FALSE,
		used_at TIMESTAMP,
		FOREIGN KEY (article_id) REFERENCES articles(id)
	);

	CREATE TABLE IF NOT EXISTS session_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		day TEXT NOT NULL,
		sessions_completed INTEGER NOT NULL DEFAULT 0,
		review_interval INTEGER NOT NULL DEFAULT 5
	);

	CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
	CREATE INDEX IF NOT EXISTS idx_translations_article ON translations(article_id);
	CREATE INDEX IF NOT EXISTS idx_tokens_article ON validation_tokens(article_id);
	CREATE INDEX IF NOT EXISTS idx_article_keywords ON article_keywords(article_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization so
// stored text compares consistently.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
