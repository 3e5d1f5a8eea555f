package repository

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/sendiq/sendiq/internal/database"
)

// TokenRepository persists the mailbox OAuth2 token so a restart can renew silently
type TokenRepository struct {
	kv  database.KV
	key string
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(kv database.KV, prefix string) *TokenRepository {
	return &TokenRepository{kv: kv, key: prefix + KeyOAuthToken}
}

// LoadToken returns the stored token or ErrNotFound
func (r *TokenRepository) LoadToken(ctx context.Context) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := getJSON(ctx, r.kv, r.key, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// SaveToken stores the token
func (r *TokenRepository) SaveToken(ctx context.Context, tok *oauth2.Token) error {
	if err := putJSON(ctx, r.kv, r.key, tok); err != nil {
		return fmt.Errorf("failed to save oauth token: %w", err)
	}
	return nil
}

// DeleteToken forgets the stored token
func (r *TokenRepository) DeleteToken(ctx context.Context) error {
	return r.kv.DeleteValue(ctx, r.key)
}
