// Package sessiontoken issues and verifies JWTs authorizing a client to
// join a collaborative document session, and tracks how many sessions
// are currently live against each document so a single document can't
// be overrun by more concurrent editors than it was provisioned for.
package sessiontoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTooManySessions is returned by Verify when documentID already has
// MaxSessionsPerDocument live sessions.
var ErrTooManySessions = errors.New("sessiontoken: too many active sessions for document")

// Config controls token lifetime, replay-protection windows, and how many
// concurrent sessions a single document may host.
type Config struct {
	TTL                    time.Duration
	NonceWindow            time.Duration
	MaxNoncePerWindow      int
	MaxSessionsPerDocument int
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		TTL:                    12 * time.Hour,
		NonceWindow:            5 * time.Minute,
		MaxNoncePerWindow:      1000,
		MaxSessionsPerDocument: 64,
	}
}

// DocumentToken is the JWT payload authorizing access to one document
// session.
type DocumentToken struct {
	DocumentID string    `json:"document_id"`
	ClientID   string    `json:"client_id"`
	IssuedAt   time.Time `json:"iat"`
	ExpiresAt  time.Time `json:"exp"`
	Nonce      string    `json:"nonce"`
	jwt.RegisteredClaims
}

// NonceStore tracks recently issued nonces to reject replayed tokens.
type NonceStore struct {
	mu     sync.RWMutex
	nonces map[string]time.Time
}

// NewNonceStore returns an empty NonceStore.
func NewNonceStore() *NonceStore {
	return &NonceStore{nonces: make(map[string]time.Time)}
}

// Add records nonce as seen now.
func (s *NonceStore) Add(nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonce] = time.Now()
}

// Exists reports whether nonce was seen within window.
func (s *NonceStore) Exists(nonce string, window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen, ok := s.nonces[nonce]
	return ok && time.Since(seen) < window
}

// Cleanup removes nonces older than maxAge, returning how many were removed.
func (s *NonceStore) Cleanup(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for nonce, seen := range s.nonces {
		if seen.Before(cutoff) {
			delete(s.nonces, nonce)
			removed++
		}
	}
	return removed
}

// Service issues and verifies DocumentTokens, and tracks the set of
// sessions currently admitted to each document.
type Service struct {
	mu         sync.RWMutex
	signingKey []byte
	algorithm  jwt.SigningMethod
	nonceStore *NonceStore
	config     *Config
	sessions   map[string]map[string]bool // documentID -> set of active nonces
}

// New returns a Service with a freshly generated signing key.
func New(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("sessiontoken: generate signing key: %w", err)
	}
	return &Service{
		signingKey: key,
		algorithm:  jwt.SigningMethodHS256,
		nonceStore: NewNonceStore(),
		config:     config,
		sessions:   make(map[string]map[string]bool),
	}, nil
}

// ActiveSessionCount returns how many verified, unrevoked sessions are
// currently admitted to documentID.
func (s *Service) ActiveSessionCount(documentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[documentID])
}

// Revoke ends the session identified by nonce for documentID, freeing
// its slot for another client. Safe to call with an unknown or already
// revoked nonce.
func (s *Service) Revoke(documentID, nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sessions[documentID]; ok {
		delete(set, nonce)
		if len(set) == 0 {
			delete(s.sessions, documentID)
		}
	}
}

// Generate issues a token authorizing clientID to join documentID.
func (s *Service) Generate(documentID, clientID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("sessiontoken: generate nonce: %w", err)
	}

	claims := &DocumentToken{
		DocumentID: documentID,
		ClientID:   clientID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.config.TTL),
		Nonce:      nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "collabserver",
			Subject:   documentID,
		},
	}

	token := jwt.NewWithClaims(s.algorithm, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sessiontoken: sign: %w", err)
	}
	return signed, nil
}

// Verify validates tokenString, rejecting expired or replayed tokens, and
// admits the resulting session against its document's concurrent-session
// limit. Callers that hold a successfully verified token for the
// lifetime of a connection should call Revoke when the connection ends.
func (s *Service) Verify(tokenString string) (*DocumentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parsed, err := jwt.ParseWithClaims(tokenString, &DocumentToken{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != s.algorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sessiontoken: parse: %w", err)
	}

	claims, ok := parsed.Claims.(*DocumentToken)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("sessiontoken: invalid claims")
	}
	if time.Now().After(claims.ExpiresAt) {
		return nil, fmt.Errorf("sessiontoken: expired")
	}
	if s.nonceStore.Exists(claims.Nonce, s.config.NonceWindow) {
		return nil, fmt.Errorf("sessiontoken: replay detected")
	}

	set, ok := s.sessions[claims.DocumentID]
	if !ok {
		set = make(map[string]bool)
		s.sessions[claims.DocumentID] = set
	}
	if s.config.MaxSessionsPerDocument > 0 && len(set) >= s.config.MaxSessionsPerDocument {
		return nil, ErrTooManySessions
	}
	set[claims.Nonce] = true

	s.nonceStore.Add(claims.Nonce)
	return claims, nil
}

// CleanupExpiredNonces removes stale replay-protection entries.
func (s *Service) CleanupExpiredNonces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonceStore.Cleanup(s.config.NonceWindow * 2)
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
