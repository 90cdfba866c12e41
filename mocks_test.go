package social

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newTestCipher(t *testing.T) *TokenCipher {
	t.Helper()
	cipher, err := NewTokenCipher([]byte(testKey))
	require.NoError(t, err)
	return cipher
}

func newTestStore(t *testing.T) (*TokenStore, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewTokenStore(repo, newTestCipher(t)), repo
}

func testConnection(userID, provider string) *Connection {
	now := time.Now()
	return &Connection{
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: "account-1",
		AccountUsername:   "tester",
		AccessToken:       "access-token",
		RefreshToken:      "refresh-token",
		Scopes:            []string{"scope.read"},
		Status:            ConnectionStatusActive,
		IssuedAt:          now,
		ExpiresAt:         now.Add(time.Hour),
	}
}

func requireTextCode(t *testing.T, err error, textCode string) *goerrors.Error {
	t.Helper()
	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	require.Equal(t, textCode, richErr.TextCode)
	return richErr
}

// memRepo is a map-backed ConnectionRepository. Missing records surface as
// sql.ErrNoRows so the store sees what the bun repository would produce.
type memRepo struct {
	mu    sync.Mutex
	conns map[string]*Connection
	seq   int
}

var _ ConnectionRepository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{conns: map[string]*Connection{}}
}

func (r *memRepo) FindByUserAndProvider(ctx context.Context, userID, provider string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connKey(userID, provider)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return conn.Clone(), nil
}

func (r *memRepo) FindByUserID(ctx context.Context, userID string) ([]*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Connection
	for _, conn := range r.conns {
		if conn.UserID == userID {
			out = append(out, conn.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r *memRepo) FindExpiring(ctx context.Context, before time.Time) ([]*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Connection
	for _, conn := range r.conns {
		if conn.Status == ConnectionStatusActive && !conn.ExpiresAt.After(before) {
			out = append(out, conn.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (r *memRepo) Upsert(ctx context.Context, conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := connKey(conn.UserID, conn.Provider)
	now := time.Now()
	if existing, ok := r.conns[key]; ok {
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
	} else {
		r.seq++
		conn.ID = fmt.Sprintf("conn-%d", r.seq)
		if conn.CreatedAt.IsZero() {
			conn.CreatedAt = now
		}
	}
	conn.UpdatedAt = now

	r.conns[key] = conn.Clone()
	return nil
}

func (r *memRepo) SetStatus(ctx context.Context, userID, provider string, status ConnectionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connKey(userID, provider)]
	if !ok {
		return sql.ErrNoRows
	}
	conn.Status = status
	conn.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) DeleteByUserAndProvider(ctx context.Context, userID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := connKey(userID, provider)
	if _, ok := r.conns[key]; !ok {
		return sql.ErrNoRows
	}
	delete(r.conns, key)
	return nil
}

// stored returns the raw persisted record, ciphertext and all.
func (r *memRepo) stored(userID, provider string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connKey(userID, provider)]
	if !ok {
		return nil
	}
	return conn.Clone()
}

// seed places a record directly, bypassing the store's cipher.
func (r *memRepo) seed(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.ID == "" {
		r.seq++
		conn.ID = fmt.Sprintf("conn-%d", r.seq)
	}
	r.conns[connKey(conn.UserID, conn.Provider)] = conn.Clone()
}

// fakeProvider is a scripted Provider. Behaviors left nil fall back to
// benign defaults so tests only script what they assert on.
type fakeProvider struct {
	name string
	meta Metadata

	exchangeFn func(ctx context.Context, code string, cfg ExchangeConfig) (*Token, error)
	refreshFn  func(ctx context.Context, refreshToken string) (*Token, error)
	userInfoFn func(ctx context.Context, token *Token) (*Profile, error)
	fetchFn    func(ctx context.Context, token *Token, req ContentRequest) (*ContentPage, error)

	mu            sync.Mutex
	exchangeCalls int
	refreshCalls  int
	userInfoCalls int
	fetchCalls    int
	lastCode      string
	lastVerifier  string
	lastRefresh   string
	fetchReqs     []ContentRequest
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Metadata() Metadata {
	meta := f.meta
	if meta.Name == "" {
		meta.Name = f.name
	}
	return meta
}

func (f *fakeProvider) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	cfg := ApplyAuthCodeOptions(f.meta.Scopes, opts...)

	q := url.Values{}
	q.Set("state", state)
	if cfg.CodeChallenge != "" {
		q.Set("code_challenge", cfg.CodeChallenge)
		q.Set("code_challenge_method", cfg.CodeChallengeMethod)
	}
	return "https://provider.test/authorize?" + q.Encode()
}

func (f *fakeProvider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	cfg := ApplyExchangeOptions(opts...)

	f.mu.Lock()
	f.exchangeCalls++
	f.lastCode = code
	f.lastVerifier = cfg.CodeVerifier
	fn := f.exchangeFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, code, cfg)
	}
	return &Token{AccessToken: "access-" + code}, nil
}

func (f *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.lastRefresh = refreshToken
	fn := f.refreshFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, refreshToken)
	}
	return &Token{AccessToken: "renewed-access", RefreshToken: "renewed-refresh"}, nil
}

func (f *fakeProvider) UserInfo(ctx context.Context, token *Token) (*Profile, error) {
	f.mu.Lock()
	f.userInfoCalls++
	fn := f.userInfoFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, token)
	}
	return &Profile{ProviderUserID: "account-1", Provider: f.name, Username: "tester"}, nil
}

func (f *fakeProvider) FetchContent(ctx context.Context, token *Token, req ContentRequest) (*ContentPage, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.fetchReqs = append(f.fetchReqs, req)
	fn := f.fetchFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, req)
	}
	return &ContentPage{}, nil
}

// captureSink records activity events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (s *captureSink) Record(ctx context.Context, event ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) byType(eventType ActivityEventType) []ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ActivityEvent
	for _, event := range s.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}
