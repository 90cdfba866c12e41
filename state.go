package social

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// DefaultStateTTL bounds how long an issued state value stays redeemable.
const DefaultStateTTL = 10 * time.Minute

// StateToken is the server-side record behind an opaque callback state value.
type StateToken struct {
	Value        string
	UserID       string
	Provider     string
	CodeVerifier string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// StateIssuer issues and redeems single-use anti-CSRF state values. Validate
// consumes the value: a state never redeems twice, even under concurrent
// callbacks.
type StateIssuer interface {
	Issue(userID, provider string) (*StateToken, error)
	Validate(value, provider string) (*StateToken, error)
}

// CacheStateIssuer keeps issued states in an in-process TTL cache. Values are
// opaque 256-bit random strings; nothing about the user or provider leaks
// into the round-tripped parameter.
type CacheStateIssuer struct {
	mu    sync.Mutex
	store *cache.Cache
	ttl   time.Duration
}

// NewStateIssuer creates a state issuer with the given TTL (DefaultStateTTL
// when zero).
func NewStateIssuer(ttl time.Duration) *CacheStateIssuer {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &CacheStateIssuer{
		store: cache.New(ttl, ttl),
		ttl:   ttl,
	}
}

// Issue creates a state bound to (user, provider) together with a fresh PKCE
// code verifier. The verifier stays server-side until the matching callback.
func (s *CacheStateIssuer) Issue(userID, provider string) (*StateToken, error) {
	value, err := generateStateValue()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	now := time.Now()
	st := &StateToken{
		Value:        value,
		UserID:       userID,
		Provider:     provider,
		CodeVerifier: verifier,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.ttl),
	}

	s.mu.Lock()
	s.store.Set(value, st, s.ttl)
	s.mu.Unlock()

	return st, nil
}

// Validate redeems a state value for the given provider. The lookup and the
// delete happen under one lock so exactly one of several concurrent callers
// wins; everyone else gets ErrInvalidState. A provider mismatch also consumes
// the value.
func (s *CacheStateIssuer) Validate(value, provider string) (*StateToken, error) {
	if value == "" {
		return nil, ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, found := s.store.Get(value)
	if !found {
		return nil, ErrInvalidState
	}
	s.store.Delete(value)

	st, ok := v.(*StateToken)
	if !ok {
		return nil, ErrInvalidState
	}
	if st.Provider != provider {
		return nil, fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}

	return st, nil
}

func generateStateValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func computeCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
