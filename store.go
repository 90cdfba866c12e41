package social

import (
	"context"
	"sort"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// TokenStore is the only component that touches connection secrets. It seals
// tokens with the configured cipher before handing records to the repository
// and unseals them on the way out. Operations on the same (user, provider)
// pair are mutually exclusive; distinct pairs never contend.
type TokenStore struct {
	repo   ConnectionRepository
	cipher *TokenCipher
	logger Logger
	locks  connLocks
}

// NewTokenStore creates a store over the given repository and cipher.
func NewTokenStore(repo ConnectionRepository, cipher *TokenCipher) *TokenStore {
	return &TokenStore{
		repo:   repo,
		cipher: cipher,
		logger: defLogger{},
	}
}

// WithLogger sets the logger used for storage diagnostics.
func (s *TokenStore) WithLogger(logger Logger) *TokenStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Upsert seals and persists a connection, replacing any previous record for
// the same (user, provider). The caller's record is not mutated.
func (s *TokenStore) Upsert(ctx context.Context, conn *Connection) error {
	if conn == nil || conn.UserID == "" || conn.Provider == "" {
		return goerrors.New("connection requires user id and provider", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	mu := s.locks.acquire(connKey(conn.UserID, conn.Provider))
	defer mu.Unlock()

	sealed, err := s.seal(conn)
	if err != nil {
		return err
	}
	if sealed.Status == "" {
		sealed.Status = ConnectionStatusActive
	}

	if err := s.repo.Upsert(ctx, sealed); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist connection").
			WithMetadata(map[string]any{"provider": conn.Provider})
	}

	conn.ID = sealed.ID
	conn.CreatedAt = sealed.CreatedAt
	conn.UpdatedAt = sealed.UpdatedAt

	return nil
}

// Get returns the decrypted connection for (user, provider). Records marked
// expired fail with ErrTokenExpired until the user authorizes again.
func (s *TokenStore) Get(ctx context.Context, userID, provider string) (*Connection, error) {
	mu := s.locks.acquire(connKey(userID, provider))
	defer mu.Unlock()

	conn, err := s.lookup(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	if conn.Status == ConnectionStatusExpired {
		return nil, wrapProviderError(ErrTokenExpired, provider, "get", nil)
	}

	return conn, nil
}

// Revoke deletes the connection for (user, provider).
func (s *TokenStore) Revoke(ctx context.Context, userID, provider string) error {
	mu := s.locks.acquire(connKey(userID, provider))
	defer mu.Unlock()

	if err := s.repo.DeleteByUserAndProvider(ctx, userID, provider); err != nil {
		if repository.IsRecordNotFound(err) {
			return wrapProviderError(ErrNotConnected, provider, "revoke", nil)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke connection").
			WithMetadata(map[string]any{"provider": provider})
	}

	return nil
}

// MarkExpired flags the connection so reads fail ErrTokenExpired. The record
// is retained for audit.
func (s *TokenStore) MarkExpired(ctx context.Context, userID, provider string) error {
	mu := s.locks.acquire(connKey(userID, provider))
	defer mu.Unlock()

	if err := s.repo.SetStatus(ctx, userID, provider, ConnectionStatusExpired); err != nil {
		if repository.IsRecordNotFound(err) {
			return wrapProviderError(ErrNotConnected, provider, "mark_expired", nil)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark connection expired").
			WithMetadata(map[string]any{"provider": provider})
	}

	return nil
}

// ListConnected returns the providers the user holds an active connection
// for, sorted alphabetically.
func (s *TokenStore) ListConnected(ctx context.Context, userID string) ([]string, error) {
	conns, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list connections")
	}

	providers := make([]string, 0, len(conns))
	for _, conn := range conns {
		if conn.Status == ConnectionStatusActive {
			providers = append(providers, conn.Provider)
		}
	}
	sort.Strings(providers)

	return providers, nil
}

// ListConnections returns every connection for the user with token fields
// blanked, suitable for status displays.
func (s *TokenStore) ListConnections(ctx context.Context, userID string) ([]*Connection, error) {
	conns, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list connections")
	}

	out := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		redacted := conn.Clone()
		redacted.AccessToken = ""
		redacted.RefreshToken = ""
		out = append(out, redacted)
	}

	return out, nil
}

// ListExpiring returns decrypted active connections due at or before the
// given instant, for the refresh sweep.
func (s *TokenStore) ListExpiring(ctx context.Context, before time.Time) ([]*Connection, error) {
	conns, err := s.repo.FindExpiring(ctx, before)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list expiring connections")
	}

	out := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		open, err := s.unseal(conn)
		if err != nil {
			s.logger.Warn("skipping undecryptable connection", "provider", conn.Provider, "error", err)
			continue
		}
		out = append(out, open)
	}

	return out, nil
}

// lookup fetches and unseals a record regardless of status. Used internally
// where expired records still matter, such as the reconnect policy check.
func (s *TokenStore) lookup(ctx context.Context, userID, provider string) (*Connection, error) {
	conn, err := s.repo.FindByUserAndProvider(ctx, userID, provider)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, wrapProviderError(ErrNotConnected, provider, "get", nil)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load connection").
			WithMetadata(map[string]any{"provider": provider})
	}

	return s.unseal(conn)
}

func (s *TokenStore) seal(conn *Connection) (*Connection, error) {
	sealed := conn.Clone()

	access, err := s.cipher.Encrypt(conn.AccessToken)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt access token")
	}
	refresh, err := s.cipher.Encrypt(conn.RefreshToken)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt refresh token")
	}

	sealed.AccessToken = access
	sealed.RefreshToken = refresh
	return sealed, nil
}

func (s *TokenStore) unseal(conn *Connection) (*Connection, error) {
	open := conn.Clone()

	access, err := s.cipher.Decrypt(conn.AccessToken)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decrypt access token").
			WithMetadata(map[string]any{"provider": conn.Provider})
	}
	refresh, err := s.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decrypt refresh token").
			WithMetadata(map[string]any{"provider": conn.Provider})
	}

	open.AccessToken = access
	open.RefreshToken = refresh
	return open, nil
}

func connKey(userID, provider string) string {
	return userID + ":" + provider
}

// connLocks hands out one mutex per connection key. Entries are never
// evicted; the key space is bounded by users times providers.
type connLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *connLocks) acquire(key string) *sync.Mutex {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m
}
