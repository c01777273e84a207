package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Token is one persisted validation token.
type Token struct {
	ID          string
	ArticleID   string
	PayloadHash string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
	UsedAt      time.Time
}

// InsertToken stores a freshly minted token.
func (s *Store) InsertToken(ctx context.Context, t *Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_tokens (id, article_id, payload_hash, created_at, expires_at, used)
		 VALUES (?, ?, ?, ?, ?, FALSE)`,
		t.ID, t.ArticleID, t.PayloadHash, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// GetToken returns a token by id, or nil when unknown.
func (s *Store) GetToken(ctx context.Context, id string) (*Token, error) {
	var t Token
	var usedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, article_id, payload_hash, created_at, expires_at, used, used_at
		 FROM validation_tokens WHERE id = ?`, id).
		Scan(&t.ID, &t.ArticleID, &t.PayloadHash, &t.CreatedAt, &t.ExpiresAt, &t.Used, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	t.UsedAt = usedAt.Time
	return &t, nil
}

// CleanupTokens deletes tokens that are spent or expired past the grace
// window, and returns how many were removed. Expired-but-recent tokens
// are kept so a late save still gets a precise "expired" error instead
// of "unknown token".
func (s *Store) CleanupTokens(ctx context.Context, grace time.Duration) (int64, error) {
	query, args, err := s.sb.
		Delete("validation_tokens").
		Where(sq.Or{
			sq.Eq{"used": true},
			sq.Lt{"expires_at": time.Now().Add(-grace)},
		}).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up tokens: %w", err)
	}
	return res.RowsAffected()
}
