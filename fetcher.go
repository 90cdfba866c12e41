package social

import (
	"context"
	"errors"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultFetchLimit is used when a caller passes a non-positive limit.
	DefaultFetchLimit = 10
	// MaxFetchLimit caps a single FetchRecent call.
	MaxFetchLimit = 200
)

var (
	// DefaultFetchRate paces page requests per provider.
	DefaultFetchRate = rate.Every(200 * time.Millisecond)
	// DefaultFetchBurst is the per-provider limiter burst.
	DefaultFetchBurst = 5
)

// Fetcher retrieves recent user content from a provider, paging until the
// requested number of items or the end of the feed. A client-side token
// bucket per provider spaces out page requests; when the provider throttles
// anyway the fetch stops immediately and surfaces ErrRateLimited with the
// suggested retry-after.
type Fetcher struct {
	registry  *Registry
	store     *TokenStore
	refresher *Refresher
	limit     rate.Limit
	burst     int
	sink      ActivitySink
	logger    Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher creates a fetcher that draws fresh tokens through the refresher.
func NewFetcher(registry *Registry, store *TokenStore, refresher *Refresher) *Fetcher {
	return &Fetcher{
		registry:  registry,
		store:     store,
		refresher: refresher,
		limit:     DefaultFetchRate,
		burst:     DefaultFetchBurst,
		sink:      noopActivitySink{},
		logger:    defLogger{},
		limiters:  make(map[string]*rate.Limiter),
	}
}

// WithLogger sets the logger used for fetch diagnostics.
func (f *Fetcher) WithLogger(logger Logger) *Fetcher {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// WithActivitySink sets the sink receiving fetch audit events.
func (f *Fetcher) WithActivitySink(sink ActivitySink) *Fetcher {
	f.sink = normalizeActivitySink(sink)
	return f
}

// WithRateLimit overrides the per-provider client-side pacing.
func (f *Fetcher) WithRateLimit(limit rate.Limit, burst int) *Fetcher {
	if limit > 0 {
		f.limit = limit
	}
	if burst > 0 {
		f.burst = burst
	}
	return f
}

// FetchRecent returns up to limit recent content items for the user on the
// given provider, newest first as delivered by the provider.
func (f *Fetcher) FetchRecent(ctx context.Context, userID, provider string, limit int) ([]ContentItem, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	if limit > MaxFetchLimit {
		limit = MaxFetchLimit
	}

	p, err := f.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}

	meta := p.Metadata()
	if !meta.SupportsContent {
		return nil, wrapProviderError(ErrNotSupported, provider, "content", nil)
	}

	conn, err := f.refresher.EnsureFresh(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	token := &Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		ExpiresAt:    conn.ExpiresAt,
		Scopes:       conn.Scopes,
	}

	items := make([]ContentItem, 0, limit)
	cursor := ""
	for len(items) < limit {
		if err := f.limiter(provider).Wait(ctx); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "fetch aborted").
				WithMetadata(map[string]any{"provider": provider})
		}

		page, err := p.FetchContent(ctx, token, ContentRequest{
			Cursor: cursor,
			Limit:  limit - len(items),
		})
		if err != nil {
			return nil, f.classify(err, provider)
		}
		if page == nil || len(page.Items) == 0 {
			break
		}

		items = append(items, page.Items...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(items) > limit {
		items = items[:limit]
	}

	f.record(ctx, userID, provider, len(items))

	return items, nil
}

// classify maps adapter content errors into the public taxonomy. Throttling
// ends the fetch with ErrRateLimited; a 401 means the provider no longer
// honors the token, which reads as expired on our side.
func (f *Fetcher) classify(err error, provider string) error {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return err
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		switch {
		case perr.Status == 429:
			return wrapProviderError(ErrRateLimited, provider, "content", err)
		case perr.Status == 401:
			return wrapProviderError(ErrTokenExpired, provider, "content", err)
		case perr.Status >= 500:
			return wrapProviderError(ErrProviderUnavailable, provider, "content", err)
		default:
			return wrapProviderError(ErrFetchFailed, provider, "content", err)
		}
	}

	if isTransportError(err) {
		return wrapProviderError(ErrProviderUnavailable, provider, "content", err)
	}

	return wrapProviderError(ErrFetchFailed, provider, "content", err)
}

func (f *Fetcher) limiter(provider string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[provider]
	if !ok {
		l = rate.NewLimiter(f.limit, f.burst)
		f.limiters[provider] = l
	}
	return l
}

func (f *Fetcher) record(ctx context.Context, userID, provider string, count int) {
	err := f.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventContentFetched,
		UserID:     userID,
		Provider:   provider,
		Actor:      ActorRef{Type: "user", ID: userID},
		Metadata:   map[string]any{"count": count},
		OccurredAt: time.Now(),
	})
	if err != nil {
		f.logger.Warn("activity sink rejected event", "event", string(ActivityEventContentFetched), "error", err)
	}
}
