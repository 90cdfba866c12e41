package social

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshMargin is how long before expiry a token counts as due.
	DefaultRefreshMargin = 5 * time.Minute
	// DefaultSweepInterval paces the background renewal loop.
	DefaultSweepInterval = time.Minute
)

// Refresher renews connections entering the safety margin before expiry.
// Concurrent renewals of one connection collapse into a single provider
// call. A rejected refresh marks the record expired; there is no retry
// beyond the exchange client's own bound, so a connection never loops
// against a provider that keeps saying no.
type Refresher struct {
	store    *TokenStore
	exchange *ExchangeClient
	registry *Registry
	margin   time.Duration
	interval time.Duration
	group    singleflight.Group
	sink     ActivitySink
	logger   Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRefresher creates a refresher over the store and exchange client.
func NewRefresher(store *TokenStore, exchange *ExchangeClient, registry *Registry) *Refresher {
	return &Refresher{
		store:    store,
		exchange: exchange,
		registry: registry,
		margin:   DefaultRefreshMargin,
		interval: DefaultSweepInterval,
		sink:     noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithLogger sets the logger used for refresh diagnostics.
func (r *Refresher) WithLogger(logger Logger) *Refresher {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithActivitySink sets the sink receiving refresh audit events.
func (r *Refresher) WithActivitySink(sink ActivitySink) *Refresher {
	r.sink = normalizeActivitySink(sink)
	return r
}

// WithMargin overrides the refresh safety margin.
func (r *Refresher) WithMargin(margin time.Duration) *Refresher {
	if margin > 0 {
		r.margin = margin
	}
	return r
}

// WithSweepInterval overrides the background sweep cadence.
func (r *Refresher) WithSweepInterval(interval time.Duration) *Refresher {
	if interval > 0 {
		r.interval = interval
	}
	return r
}

// EnsureFresh returns a connection whose token is outside the refresh margin,
// renewing it first when necessary. Callers doing provider work should always
// come through here rather than reading the store directly.
func (r *Refresher) EnsureFresh(ctx context.Context, userID, provider string) (*Connection, error) {
	conn, err := r.store.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	if !r.due(conn) {
		return conn, nil
	}

	v, err, _ := r.group.Do(connKey(userID, provider), func() (any, error) {
		return r.refresh(ctx, conn)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Connection), nil
}

// Start launches the background sweep renewing connections that enter the
// margin. It returns immediately; Stop or context cancellation ends the loop.
func (r *Refresher) Start(ctx context.Context) {
	r.stop = make(chan struct{})

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

// Stop ends the background sweep.
func (r *Refresher) Stop() {
	if r.stop == nil {
		return
	}
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

func (r *Refresher) sweep(ctx context.Context) {
	due, err := r.store.ListExpiring(ctx, time.Now().Add(r.margin))
	if err != nil {
		r.logger.Error("refresh sweep failed to list connections", "error", err)
		return
	}

	for _, conn := range due {
		if _, err := r.EnsureFresh(ctx, conn.UserID, conn.Provider); err != nil {
			r.logger.Warn("sweep refresh failed",
				"provider", conn.Provider,
				"error", err,
			)
		}
	}
}

func (r *Refresher) due(conn *Connection) bool {
	if conn.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(conn.ExpiresAt.Add(-r.margin))
}

func (r *Refresher) refresh(ctx context.Context, conn *Connection) (*Connection, error) {
	meta, err := r.registry.Describe(conn.Provider)
	if err != nil {
		return nil, err
	}

	// Providers without refresh support are skipped until the token
	// actually lapses, then the record flips to expired.
	if !meta.SupportsRefresh || conn.RefreshToken == "" {
		if time.Now().Before(conn.ExpiresAt) {
			return conn, nil
		}
		return nil, r.expire(ctx, conn, nil)
	}

	token, err := r.exchange.Refresh(ctx, conn.Provider, conn.RefreshToken)
	if err != nil {
		return nil, r.expire(ctx, conn, err)
	}

	renewed := conn.Clone()
	renewed.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		renewed.RefreshToken = token.RefreshToken
	}
	if len(token.Scopes) > 0 {
		renewed.Scopes = append([]string(nil), token.Scopes...)
	}
	renewed.IssuedAt = time.Now()
	renewed.ExpiresAt = token.ExpiresAt
	renewed.Status = ConnectionStatusActive

	if err := r.store.Upsert(ctx, renewed); err != nil {
		return nil, err
	}

	r.record(ctx, ActivityEventTokenRefreshed, renewed.UserID, renewed.Provider, map[string]any{
		"expires_at": renewed.ExpiresAt,
	})

	return renewed, nil
}

// expire marks the record and reports why the token is no longer usable.
func (r *Refresher) expire(ctx context.Context, conn *Connection, cause error) error {
	if err := r.store.MarkExpired(ctx, conn.UserID, conn.Provider); err != nil {
		r.logger.Error("failed to mark connection expired",
			"provider", conn.Provider,
			"error", err,
		)
	}

	meta := map[string]any{}
	if cause != nil {
		meta["error"] = cause.Error()
	}
	r.record(ctx, ActivityEventRefreshFailed, conn.UserID, conn.Provider, meta)

	if cause != nil {
		return cause
	}
	return wrapProviderError(ErrTokenExpired, conn.Provider, "refresh", nil)
}

func (r *Refresher) record(ctx context.Context, event ActivityEventType, userID, provider string, meta map[string]any) {
	err := r.sink.Record(ctx, ActivityEvent{
		EventType:  event,
		UserID:     userID,
		Provider:   provider,
		Actor:      ActorRef{Type: "system", ID: "refresher"},
		Metadata:   meta,
		OccurredAt: time.Now(),
	})
	if err != nil {
		r.logger.Warn("activity sink rejected event", "event", string(event), "error", err)
	}
}
