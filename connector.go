package social

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Connector coordinates the authorization flow and fronts storage, refresh,
// and content retrieval for registered providers. It is the package's main
// entry point; most applications construct one Connector and wire its
// HTTPController into their router.
type Connector struct {
	registry  *Registry
	store     *TokenStore
	state     StateIssuer
	exchange  *ExchangeClient
	refresher *Refresher
	fetcher   *Fetcher
	sink      ActivitySink
	logger    Logger
}

// ConnectorOption configures the connector.
type ConnectorOption func(*Connector)

// NewConnector creates a connector over the given registry and store.
// Components not supplied through options are built with defaults and share
// the connector's logger and activity sink.
func NewConnector(registry *Registry, store *TokenStore, opts ...ConnectorOption) *Connector {
	c := &Connector{
		registry: registry,
		store:    store,
		sink:     noopActivitySink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.state == nil {
		c.state = NewStateIssuer(DefaultStateTTL)
	}
	if c.exchange == nil {
		c.exchange = NewExchangeClient(registry).WithLogger(c.logger)
	}
	if c.refresher == nil {
		c.refresher = NewRefresher(store, c.exchange, registry).
			WithLogger(c.logger).
			WithActivitySink(c.sink)
	}
	if c.fetcher == nil {
		c.fetcher = NewFetcher(registry, store, c.refresher).
			WithLogger(c.logger).
			WithActivitySink(c.sink)
	}

	return c
}

// WithStateIssuer sets a custom state issuer.
func WithStateIssuer(issuer StateIssuer) ConnectorOption {
	return func(c *Connector) {
		if issuer != nil {
			c.state = issuer
		}
	}
}

// WithExchangeClient sets a custom exchange client.
func WithExchangeClient(exchange *ExchangeClient) ConnectorOption {
	return func(c *Connector) {
		if exchange != nil {
			c.exchange = exchange
		}
	}
}

// WithRefresher sets a custom refresher.
func WithRefresher(refresher *Refresher) ConnectorOption {
	return func(c *Connector) {
		if refresher != nil {
			c.refresher = refresher
		}
	}
}

// WithFetcher sets a custom content fetcher.
func WithFetcher(fetcher *Fetcher) ConnectorOption {
	return func(c *Connector) {
		if fetcher != nil {
			c.fetcher = fetcher
		}
	}
}

// WithActivitySink sets the activity sink for audit logging.
func WithActivitySink(sink ActivitySink) ConnectorOption {
	return func(c *Connector) {
		c.sink = normalizeActivitySink(sink)
	}
}

// WithLogger sets the connector logger. Components built by NewConnector
// inherit it; components passed in through options keep their own.
func WithLogger(logger Logger) ConnectorOption {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Callback carries the query parameters a provider appends to the redirect
// URI after the user decides.
type Callback struct {
	Code             string
	State            string
	ErrorCode        string
	ErrorDescription string
}

// AuthRedirect contains the authorization URL for redirecting users.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// ProviderInfo describes an available provider.
type ProviderInfo struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	SupportsRefresh bool   `json:"supports_refresh"`
	SupportsContent bool   `json:"supports_content"`
}

// BeginAuth starts the authorization flow for a user on a provider. The
// returned redirect carries a single-use state; for PKCE providers the code
// challenge is derived here and the verifier stays server-side until the
// callback.
func (c *Connector) BeginAuth(ctx context.Context, userID, provider string) (*AuthRedirect, error) {
	p, err := c.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, goerrors.New("user id is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	st, err := c.state.Issue(userID, provider)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue state").
			WithMetadata(map[string]any{"provider": provider})
	}

	var opts []AuthCodeOption
	if p.Metadata().UsesPKCE {
		opts = append(opts, WithPKCE(computeCodeChallenge(st.CodeVerifier), "S256"))
	}

	return &AuthRedirect{
		URL:      p.AuthCodeURL(st.Value, opts...),
		State:    st.Value,
		Provider: provider,
	}, nil
}

// CompleteAuth finishes the flow after the provider redirects back. The
// callback is checked in a fixed order: provider error parameters first,
// then the state, then the code. On success the credential is stored and
// the connection returned with its tokens blanked.
func (c *Connector) CompleteAuth(ctx context.Context, provider string, cb Callback) (*Connection, error) {
	p, err := c.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}

	if cb.ErrorCode != "" {
		return nil, c.denied(provider, cb)
	}

	st, err := c.state.Validate(cb.State, provider)
	if err != nil {
		return nil, err
	}

	if cb.Code == "" {
		return nil, wrapProviderError(ErrMissingCode, provider, "callback", nil)
	}

	var exchangeOpts []ExchangeOption
	if st.CodeVerifier != "" {
		exchangeOpts = append(exchangeOpts, WithCodeVerifier(st.CodeVerifier))
	}

	token, err := c.exchange.Exchange(ctx, provider, cb.Code, exchangeOpts...)
	if err != nil {
		return nil, err
	}

	profile, err := p.UserInfo(ctx, token)
	if err != nil {
		return nil, c.exchange.classify(err, provider, "user_info", ErrUserInfoFailed)
	}

	if err := c.checkAccountMatch(ctx, st.UserID, provider, profile); err != nil {
		return nil, err
	}

	now := time.Now()
	conn := &Connection{
		UserID:            st.UserID,
		Provider:          provider,
		ProviderAccountID: profile.ProviderUserID,
		AccountUsername:   accountLabel(profile),
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		Scopes:            token.Scopes,
		Status:            ConnectionStatusActive,
		IssuedAt:          now,
		ExpiresAt:         token.ExpiresAt,
	}

	if err := c.store.Upsert(ctx, conn); err != nil {
		return nil, err
	}

	c.record(ctx, ActivityEventConnected, st.UserID, provider, map[string]any{
		"provider_account_id": profile.ProviderUserID,
	})

	out := conn.Clone()
	out.AccessToken = ""
	out.RefreshToken = ""

	return out, nil
}

// Disconnect removes the stored credential for a user on a provider.
func (c *Connector) Disconnect(ctx context.Context, userID, provider string) error {
	if _, err := c.registry.Lookup(provider); err != nil {
		return err
	}

	if err := c.store.Revoke(ctx, userID, provider); err != nil {
		return err
	}

	c.record(ctx, ActivityEventDisconnected, userID, provider, nil)

	return nil
}

// ListConnected returns the provider names the user has an active
// connection on, sorted.
func (c *Connector) ListConnected(ctx context.Context, userID string) ([]string, error) {
	return c.store.ListConnected(ctx, userID)
}

// ListConnections returns the user's connections with token material
// blanked, expired records included.
func (c *Connector) ListConnections(ctx context.Context, userID string) ([]*Connection, error) {
	return c.store.ListConnections(ctx, userID)
}

// EnsureFresh returns the user's connection with a token valid beyond the
// refresh margin, renewing it first when necessary.
func (c *Connector) EnsureFresh(ctx context.Context, userID, provider string) (*Connection, error) {
	return c.refresher.EnsureFresh(ctx, userID, provider)
}

// FetchRecent returns up to limit recent content items for the user on the
// provider.
func (c *Connector) FetchRecent(ctx context.Context, userID, provider string, limit int) ([]ContentItem, error) {
	return c.fetcher.FetchRecent(ctx, userID, provider, limit)
}

// Providers lists the registered providers, sorted by name.
func (c *Connector) Providers() []ProviderInfo {
	names := c.registry.Names()
	infos := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		meta, err := c.registry.Describe(name)
		if err != nil {
			continue
		}
		infos = append(infos, ProviderInfo{
			Name:            meta.Name,
			DisplayName:     meta.DisplayName,
			SupportsRefresh: meta.SupportsRefresh,
			SupportsContent: meta.SupportsContent,
		})
	}
	return infos
}

// Refresher exposes the background refresher so callers can run its sweep.
func (c *Connector) Refresher() *Refresher {
	return c.refresher
}

// denied maps the provider's error parameters into the taxonomy. A user
// clicking cancel is not a failure of ours, so access_denied gets its own
// sentinel; everything else reads as a rejected exchange.
func (c *Connector) denied(provider string, cb Callback) error {
	meta := map[string]any{
		"provider":   provider,
		"error_code": cb.ErrorCode,
	}
	if cb.ErrorDescription != "" {
		meta["error_description"] = cb.ErrorDescription
	}

	base := ErrExchangeFailed
	if cb.ErrorCode == "access_denied" {
		base = ErrUserDenied
	}

	return base.Clone().WithMetadata(meta)
}

// checkAccountMatch blocks a reconnect that would silently swap the stored
// provider account. The user must disconnect first, which keeps revocation
// an explicit step.
func (c *Connector) checkAccountMatch(ctx context.Context, userID, provider string, profile *Profile) error {
	if profile == nil || profile.ProviderUserID == "" {
		return nil
	}

	existing, err := c.store.lookup(ctx, userID, provider)
	if err != nil || existing == nil {
		return nil
	}
	if existing.ProviderAccountID == "" || existing.ProviderAccountID == profile.ProviderUserID {
		return nil
	}

	return ErrAccountMismatch.Clone().WithMetadata(map[string]any{
		"provider":           provider,
		"connected_account":  existing.ProviderAccountID,
		"authorized_account": profile.ProviderUserID,
	})
}

func accountLabel(profile *Profile) string {
	if profile == nil {
		return ""
	}
	if profile.Username != "" {
		return profile.Username
	}
	return profile.Name
}

func (c *Connector) record(ctx context.Context, event ActivityEventType, userID, provider string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["provider"] = provider

	err := c.sink.Record(ctx, ActivityEvent{
		EventType:  event,
		UserID:     userID,
		Provider:   provider,
		Actor:      ActorRef{Type: "user", ID: userID},
		Metadata:   meta,
		OccurredAt: time.Now(),
	})
	if err != nil {
		c.logger.Warn("activity sink rejected event", "event", string(event), "error", err)
	}
}
