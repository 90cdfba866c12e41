package social

import "github.com/goliatone/go-errors"

const (
	TextCodeUnknownProvider     = "social_unknown_provider"
	TextCodeInvalidState        = "social_invalid_state"
	TextCodeMissingCode         = "social_missing_code"
	TextCodeUserDenied          = "social_user_denied"
	TextCodeExchangeFailed      = "social_exchange_failed"
	TextCodeUserInfoFail        = "social_user_info_failed"
	TextCodeRefreshFailed       = "social_refresh_failed"
	TextCodeProviderUnavailable = "social_provider_unavailable"
	TextCodeRateLimited         = "social_rate_limited"
	TextCodeNotConnected        = "social_not_connected"
	TextCodeTokenExpired        = "social_token_expired"
	TextCodeNotSupported        = "social_not_supported"
	TextCodeFetchFailed         = "social_fetch_failed"
	TextCodeAccountMismatch     = "social_account_mismatch"
)

// ErrUnknownProvider is returned when a requested provider is not registered.
var ErrUnknownProvider = errors.New("unknown social provider", errors.CategoryNotFound).
	WithTextCode(TextCodeUnknownProvider).
	WithCode(errors.CodeNotFound)

// ErrInvalidState is returned when a callback state value is unknown, already
// consumed, expired, or bound to a different provider.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrMissingCode is returned when a callback carries no authorization code.
var ErrMissingCode = errors.New("authorization code missing", errors.CategoryBadInput).
	WithTextCode(TextCodeMissingCode).
	WithCode(errors.CodeBadRequest)

// ErrUserDenied is returned when the provider reports the user cancelled or
// denied the consent screen.
var ErrUserDenied = errors.New("user denied authorization", errors.CategoryAuth).
	WithTextCode(TextCodeUserDenied).
	WithCode(errors.CodeForbidden)

// ErrExchangeFailed is returned when a provider rejects the code exchange.
var ErrExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeExchangeFailed).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching the provider profile fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshFailed is returned when a provider rejects a refresh grant.
var ErrRefreshFailed = errors.New("token refresh failed", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshFailed).
	WithCode(errors.CodeUnauthorized)

// ErrProviderUnavailable is returned on timeouts, transport failures, and
// provider 5xx responses that survive the bounded retries.
var ErrProviderUnavailable = errors.New("provider unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(errors.CodeInternal)

// ErrRateLimited is returned when the provider throttles us. Metadata carries
// retry_after_seconds when the provider suggested an interval.
var ErrRateLimited = errors.New("provider rate limit exceeded", errors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited)

// ErrNotConnected is returned when no connection exists for (user, provider).
var ErrNotConnected = errors.New("provider not connected", errors.CategoryNotFound).
	WithTextCode(TextCodeNotConnected).
	WithCode(errors.CodeNotFound)

// ErrTokenExpired is returned when the stored token expired and could not be
// renewed; the user has to authorize again.
var ErrTokenExpired = errors.New("stored token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrNotSupported is returned without any network call when a provider lacks
// the requested capability, such as refresh grants or a content feed.
var ErrNotSupported = errors.New("operation not supported by provider", errors.CategoryOperation).
	WithTextCode(TextCodeNotSupported).
	WithCode(errors.CodeBadRequest)

// ErrFetchFailed is returned when a content request fails for reasons other
// than throttling or provider outage.
var ErrFetchFailed = errors.New("content fetch failed", errors.CategoryOperation).
	WithTextCode(TextCodeFetchFailed).
	WithCode(errors.CodeBadRequest)

// ErrAccountMismatch is returned when a reconnect resolves to a different
// provider account than the one on record; the existing connection must be
// disconnected first.
var ErrAccountMismatch = errors.New("provider account mismatch", errors.CategoryConflict).
	WithTextCode(TextCodeAccountMismatch).
	WithCode(errors.CodeConflict)
