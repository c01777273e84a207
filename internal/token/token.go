// Package token issues and checks the single-use validation tokens that
// gate saves. A token proves a specific translation payload passed the
// quality gate recently; it is bound to the article and to a hash of the
// payload, so editing the text after validation invalidates it.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/valpere/transpipe/internal/store"
)

// DefaultTTL is the validation window.
const DefaultTTL = 30 * time.Minute

// Check failures, in the order they are tested.
var (
	ErrUnknown  = errors.New("unknown validation token")
	ErrUsed     = errors.New("validation token already used")
	ErrExpired  = errors.New("validation token expired")
	ErrMismatch = errors.New("validation token does not match this article and payload")
)

// Issued is a freshly minted token handed back to the caller.
type Issued struct {
	ID        string    `json:"validation_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager mints and checks tokens against the store.
type Manager struct {
	st  *store.Store
	ttl time.Duration
}

// NewManager returns a Manager. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(st *store.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{st: st, ttl: ttl}
}

// Mint issues a token for an article and payload.
func (m *Manager) Mint(ctx context.Context, articleID, payload string) (*Issued, error) {
	now := time.Now()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token id: %w", err)
	}

	t := &store.Token{
		ID:          id.String(),
		ArticleID:   articleID,
		PayloadHash: PayloadHash(payload),
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.st.InsertToken(ctx, t); err != nil {
		return nil, err
	}
	return &Issued{ID: t.ID, ExpiresAt: t.ExpiresAt}, nil
}

// Check verifies that a token exists, is unspent and unexpired, and is
// bound to the given article and payload. It does NOT consume the token;
// consumption happens atomically inside the save transaction, because a
// save that fails for other reasons must leave the token spendable.
func (m *Manager) Check(ctx context.Context, id, articleID, payload string) error {
	t, err := m.st.GetToken(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrUnknown
	}
	if t.Used {
		return ErrUsed
	}
	if time.Now().After(t.ExpiresAt) {
		return ErrExpired
	}
	if t.ArticleID != articleID || t.PayloadHash != PayloadHash(payload) {
		return ErrMismatch
	}
	return nil
}

// Cleanup removes spent tokens and tokens expired past the grace window.
func (m *Manager) Cleanup(ctx context.Context, grace time.Duration) (int64, error) {
	return m.st.CleanupTokens(ctx, grace)
}

// PayloadHash returns the hex digest binding a token to its payload.
func PayloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
