package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserInfo is the identity bound to an issued authorization code and,
// after exchange, to its access token.
type UserInfo struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OAuthStore holds authorization codes pending exchange. It must be
// constructed exactly once and held for the gateway's entire lifetime:
// a store rebuilt per request can never exchange a code it issued on a
// previous request, which was a defect in the reference implementation
// this gateway does not repeat.
type OAuthStore struct {
	signingSecret []byte
	accessTTL     time.Duration

	mu    sync.Mutex
	codes map[string]UserInfo
}

// NewOAuthStore builds the single shared OAuth store for the gateway
// process.
func NewOAuthStore(signingSecret string, accessTTL time.Duration) *OAuthStore {
	return &OAuthStore{
		signingSecret: []byte(signingSecret),
		accessTTL:     accessTTL,
		codes:         make(map[string]UserInfo),
	}
}

// CreateAuthorizationCode mints a fresh one-time code bound to user,
// valid only until ExchangeCode consumes it.
func (s *OAuthStore) CreateAuthorizationCode(user UserInfo) string {
	code := uuid.NewString()
	s.mu.Lock()
	s.codes[code] = user
	s.mu.Unlock()
	return code
}

// ExchangeCode consumes a previously issued code exactly once, and on
// success mints a signed JWT access token for the bound user.
func (s *OAuthStore) ExchangeCode(code string) (string, bool, error) {
	s.mu.Lock()
	user, ok := s.codes[code]
	if ok {
		delete(s.codes, code)
	}
	s.mu.Unlock()
	if !ok {
		return "", false, nil
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingSecret)
	if err != nil {
		return "", false, fmt.Errorf("auth: sign access token: %w", err)
	}
	return signed, true, nil
}

// ValidateToken verifies a bearer access token issued by ExchangeCode
// and returns the subject (user ID) it was issued for.
func (s *OAuthStore) ValidateToken(token string) (string, bool) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.signingSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}
