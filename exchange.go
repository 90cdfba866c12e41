package social

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultExchangeAttempts bounds how often a transient failure is retried.
	DefaultExchangeAttempts = 3
	// DefaultExchangeBackoff is the initial delay between attempts; it
	// doubles on each retry.
	DefaultExchangeBackoff = 500 * time.Millisecond
)

// ExchangeClient runs code and refresh grants through the registered provider
// adapters and normalizes the outcome. Transient failures (transport errors,
// provider 5xx) are retried with doubling backoff; provider rejections (4xx)
// are not. Refresh against a provider without refresh support fails
// ErrNotSupported before any network traffic.
type ExchangeClient struct {
	registry *Registry
	attempts int
	backoff  time.Duration
	logger   Logger
}

// NewExchangeClient creates an exchange client over the registry.
func NewExchangeClient(registry *Registry) *ExchangeClient {
	return &ExchangeClient{
		registry: registry,
		attempts: DefaultExchangeAttempts,
		backoff:  DefaultExchangeBackoff,
		logger:   defLogger{},
	}
}

// WithLogger sets the logger used for retry diagnostics.
func (c *ExchangeClient) WithLogger(logger Logger) *ExchangeClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithRetry overrides the attempt bound and initial backoff.
func (c *ExchangeClient) WithRetry(attempts int, backoff time.Duration) *ExchangeClient {
	if attempts > 0 {
		c.attempts = attempts
	}
	if backoff > 0 {
		c.backoff = backoff
	}
	return c
}

// Exchange trades an authorization code for a normalized token.
func (c *ExchangeClient) Exchange(ctx context.Context, provider, code string, opts ...ExchangeOption) (*Token, error) {
	p, err := c.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}

	var token *Token
	err = c.withRetry(ctx, provider, "exchange", func() error {
		t, err := p.Exchange(ctx, code, opts...)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		return nil, c.classify(err, provider, "exchange", ErrExchangeFailed)
	}

	return c.normalize(token, p.Metadata()), nil
}

// Refresh renews a token through the provider's refresh grant.
func (c *ExchangeClient) Refresh(ctx context.Context, provider, refreshToken string) (*Token, error) {
	p, err := c.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}

	meta := p.Metadata()
	if !meta.SupportsRefresh {
		return nil, wrapProviderError(ErrNotSupported, provider, "refresh", nil)
	}
	if refreshToken == "" {
		return nil, wrapProviderError(ErrRefreshFailed, provider, "refresh",
			errors.New("no refresh token on record"))
	}

	var token *Token
	err = c.withRetry(ctx, provider, "refresh", func() error {
		t, err := p.RefreshToken(ctx, refreshToken)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		return nil, c.classify(err, provider, "refresh", ErrRefreshFailed)
	}

	return c.normalize(token, meta), nil
}

// normalize fills the fields heterogeneous provider responses leave out.
func (c *ExchangeClient) normalize(token *Token, meta Metadata) *Token {
	if token == nil {
		return nil
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	if token.ExpiresAt.IsZero() && meta.DefaultLifetime > 0 {
		token.ExpiresAt = time.Now().Add(meta.DefaultLifetime)
	}
	if len(token.Scopes) == 0 {
		token.Scopes = append([]string(nil), meta.Scopes...)
	}
	return token
}

func (c *ExchangeClient) withRetry(ctx context.Context, provider, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			c.logger.Debug("retrying %s %s in %s (attempt %d)", provider, operation, delay, attempt+1)
			select {
			case <-ctx.Done():
				return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "grant aborted").
					WithMetadata(map[string]any{"provider": provider, "operation": operation})
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// classify wraps adapter errors into the public taxonomy. Transport failures
// and 5xx become ErrProviderUnavailable, throttling becomes ErrRateLimited,
// everything else gets the operation's rejection sentinel.
func (c *ExchangeClient) classify(err error, provider, operation string, rejected *goerrors.Error) error {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return err
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		switch {
		case perr.Status == 429:
			return wrapProviderError(ErrRateLimited, provider, operation, err)
		case perr.Status >= 500:
			return wrapProviderError(ErrProviderUnavailable, provider, operation, err)
		default:
			return wrapProviderError(rejected, provider, operation, err)
		}
	}

	if isTransportError(err) {
		return wrapProviderError(ErrProviderUnavailable, provider, operation, err)
	}

	return wrapProviderError(rejected, provider, operation, err)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		return perr.Status >= 500
	}

	return isTransportError(err)
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
