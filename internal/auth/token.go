package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sendiq/sendiq/internal/config"
)

// ErrTokensDisabled is returned when no API secret is configured.
var ErrTokensDisabled = errors.New("api tokens are disabled: security.api_secret is empty")

// APITokens issues and validates the bearer tokens UI clients present to the API.
type APITokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAPITokens creates a new APITokens.
func NewAPITokens(cfg config.SecurityConfig) *APITokens {
	return &APITokens{
		secret: []byte(cfg.APISecret),
		issuer: cfg.TokenIssuer,
		ttl:    cfg.TokenTTL,
	}
}

// Enabled reports whether API authentication is configured.
func (a *APITokens) Enabled() bool {
	return len(a.secret) > 0
}

// Issue signs a token for subject.
func (a *APITokens) Issue(subject string) (string, error) {
	if !a.Enabled() {
		return "", ErrTokensDisabled
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   a.issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.New().String(),
	}
	if a.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Validate parses tokenString and returns its claims.
func (a *APITokens) Validate(tokenString string) (*jwt.RegisteredClaims, error) {
	if !a.Enabled() {
		return nil, ErrTokensDisabled
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(a.issuer))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
