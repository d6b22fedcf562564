// Package auth implements the gateway's two authentication surfaces:
// the X-API-Key middleware guarding every endpoint except the exempt
// health/metrics/ready paths, and the OAuth 2.0 authorization-code flow
// used by GPT Actions-style integrations.
package auth

import (
	"database/sql"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/willy3087/codex-gateway/internal/wire"
)

// ExemptPaths lists request paths that bypass API-key validation,
// matched by prefix.
var ExemptPaths = []string{"/health", "/metrics", "/ready"}

// IsExemptPath reports whether path should skip API-key validation.
func IsExemptPath(path string) bool {
	for _, p := range ExemptPaths {
		if len(path) >= len(p) && path[:len(p)] == p {
			return true
		}
	}
	return false
}

// APIKeyStore validates presented API keys against known key records.
// The sqlite-backed store persists only bcrypt hashes of the keys; the
// memory-only store holds the plaintext keys in process memory.
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]wire.ApiKeyInfo // plaintext key -> info, held only in memory

	db *sql.DB // non-nil when backed by sqlite
}

// NewMemAPIKeyStore builds an empty store that keeps keys only in
// process memory. Call WithDefaultKeys to seed the development defaults.
func NewMemAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{keys: make(map[string]wire.ApiKeyInfo)}
}

// NewSQLiteAPIKeyStore builds a store backed by a sqlite database at
// dsn, creating its schema if needed. Keys are hashed with bcrypt
// before being written, and validation compares the presented key
// against every stored hash.
func NewSQLiteAPIKeyStore(dsn string) (*APIKeyStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("auth: open api key store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS api_keys (
		key_hash TEXT PRIMARY KEY,
		key_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		rate_limit INTEGER NOT NULL,
		active INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("auth: create api key schema: %w", err)
	}
	return &APIKeyStore{keys: make(map[string]wire.ApiKeyInfo), db: db}, nil
}

// AddKey registers an API key. With a sqlite backing store the key is
// hashed and persisted; with the memory-only store it is held as-is for
// the process lifetime.
func (s *APIKeyStore) AddKey(key string, info wire.ApiKeyInfo) error {
	if s.db != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("auth: hash api key: %w", err)
		}
		active := 0
		if info.Active {
			active = 1
		}
		_, err = s.db.Exec(`INSERT OR REPLACE INTO api_keys (key_hash, key_id, user_id, rate_limit, active) VALUES (?, ?, ?, ?, ?)`,
			string(hash), info.KeyID, info.UserID, info.RateLimit, active)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = info
	return nil
}

// ValidateKey looks up the presented key, returning (info, true) if it
// is known, regardless of whether it is active — callers check Active
// themselves to distinguish "unknown key" (401) from "inactive key"
// (403).
func (s *APIKeyStore) ValidateKey(key string) (wire.ApiKeyInfo, bool) {
	if s.db != nil {
		rows, err := s.db.Query(`SELECT key_hash, key_id, user_id, rate_limit, active FROM api_keys`)
		if err != nil {
			return wire.ApiKeyInfo{}, false
		}
		defer rows.Close()
		for rows.Next() {
			var hash, keyID, userID string
			var rateLimit uint32
			var active int
			if err := rows.Scan(&hash, &keyID, &userID, &rateLimit, &active); err != nil {
				continue
			}
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
				return wire.ApiKeyInfo{KeyID: keyID, UserID: userID, RateLimit: rateLimit, Active: active != 0}, true
			}
		}
		return wire.ApiKeyInfo{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.keys[key]
	return info, ok
}

// WithDefaultKeys seeds the store with a fixed development test key
// and, when gatewayKey is non-empty, an internal key carrying a high
// rate-limit quota — mirroring the reference gateway's
// with_default_keys().
func (s *APIKeyStore) WithDefaultKeys(gatewayKey string) error {
	if err := s.AddKey("test-key-12345", wire.ApiKeyInfo{
		KeyID: "key_001", UserID: "user_test", RateLimit: 100, Active: true,
	}); err != nil {
		return err
	}
	if gatewayKey != "" {
		if err := s.AddKey(gatewayKey, wire.ApiKeyInfo{
			KeyID: "key_gateway", UserID: "gateway_internal", RateLimit: 10000, Active: true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying sqlite handle, if any.
func (s *APIKeyStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
