package social

import (
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{
			name: "description wins",
			err: &ProviderError{
				Provider:    "twitter",
				Operation:   "exchange",
				Status:      400,
				Code:        "invalid_request",
				Description: "Missing code verifier",
			},
			expected: "twitter exchange failed: Missing code verifier",
		},
		{
			name: "code fallback",
			err: &ProviderError{
				Provider:  "twitter",
				Operation: "exchange",
				Code:      "invalid_grant",
			},
			expected: "twitter exchange failed: invalid_grant",
		},
		{
			name: "wrapped error fallback",
			err: &ProviderError{
				Provider: "twitter",
				Err:      errors.New("boom"),
			},
			expected: "twitter failed: boom",
		},
		{
			name:     "bare",
			err:      &ProviderError{},
			expected: "provider failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	perr := &ProviderError{Provider: "google", Err: cause}
	assert.ErrorIs(t, perr, cause)
}

func TestProviderErrorMetadata(t *testing.T) {
	perr := &ProviderError{
		Provider:    "instagram",
		Operation:   "content",
		Status:      429,
		Code:        "rate_limit",
		Description: "Application request limit reached",
		RetryAfter:  90,
		Raw:         map[string]any{"type": "OAuthException"},
	}

	meta := perr.Metadata()
	assert.Equal(t, "instagram", meta["provider"])
	assert.Equal(t, "content", meta["operation"])
	assert.Equal(t, 429, meta["status"])
	assert.Equal(t, "rate_limit", meta["code"])
	assert.Equal(t, 90, meta["retry_after_seconds"])
	assert.Equal(t, map[string]any{"type": "OAuthException"}, meta["raw"])

	quiet := &ProviderError{Provider: "instagram", Status: 500}
	assert.NotContains(t, quiet.Metadata(), "retry_after_seconds")
	assert.NotContains(t, quiet.Metadata(), "code")
}

func TestWrapProviderErrorMergesMetadata(t *testing.T) {
	cause := &ProviderError{
		Provider:  "google",
		Operation: "refresh",
		Status:    400,
		Code:      "invalid_grant",
	}

	err := wrapProviderError(ErrRefreshFailed, "google", "refresh", cause)
	richErr := requireTextCode(t, err, TextCodeRefreshFailed)

	assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
	assert.Equal(t, "google", richErr.Metadata["provider"])
	assert.Equal(t, "refresh", richErr.Metadata["operation"])
	assert.Equal(t, 400, richErr.Metadata["status"])
	assert.Equal(t, "invalid_grant", richErr.Metadata["code"])

	// Wrapping clones; the sentinel itself never accumulates metadata.
	assert.Empty(t, ErrRefreshFailed.Metadata)
}

func TestWrapProviderErrorPlainCause(t *testing.T) {
	err := wrapProviderError(ErrExchangeFailed, "twitter", "exchange", errors.New("boom"))
	richErr := requireTextCode(t, err, TextCodeExchangeFailed)
	assert.Equal(t, "boom", richErr.Metadata["error"])
}

func TestWrapProviderErrorNilCause(t *testing.T) {
	err := wrapProviderError(ErrNotSupported, "linkedin", "content", nil)
	richErr := requireTextCode(t, err, TextCodeNotSupported)
	assert.Equal(t, "linkedin", richErr.Metadata["provider"])
	assert.Equal(t, "content", richErr.Metadata["operation"])
	assert.NotContains(t, richErr.Metadata, "error")
}

func TestStructuredErrorProperties(t *testing.T) {
	tests := []struct {
		name     string
		err      *goerrors.Error
		category goerrors.Category
		textCode string
	}{
		{"ErrUnknownProvider", ErrUnknownProvider, goerrors.CategoryNotFound, TextCodeUnknownProvider},
		{"ErrInvalidState", ErrInvalidState, goerrors.CategoryBadInput, TextCodeInvalidState},
		{"ErrMissingCode", ErrMissingCode, goerrors.CategoryBadInput, TextCodeMissingCode},
		{"ErrUserDenied", ErrUserDenied, goerrors.CategoryAuth, TextCodeUserDenied},
		{"ErrExchangeFailed", ErrExchangeFailed, goerrors.CategoryAuth, TextCodeExchangeFailed},
		{"ErrUserInfoFailed", ErrUserInfoFailed, goerrors.CategoryAuth, TextCodeUserInfoFail},
		{"ErrRefreshFailed", ErrRefreshFailed, goerrors.CategoryAuth, TextCodeRefreshFailed},
		{"ErrProviderUnavailable", ErrProviderUnavailable, goerrors.CategoryOperation, TextCodeProviderUnavailable},
		{"ErrRateLimited", ErrRateLimited, goerrors.CategoryRateLimit, TextCodeRateLimited},
		{"ErrNotConnected", ErrNotConnected, goerrors.CategoryNotFound, TextCodeNotConnected},
		{"ErrTokenExpired", ErrTokenExpired, goerrors.CategoryAuth, TextCodeTokenExpired},
		{"ErrNotSupported", ErrNotSupported, goerrors.CategoryOperation, TextCodeNotSupported},
		{"ErrFetchFailed", ErrFetchFailed, goerrors.CategoryOperation, TextCodeFetchFailed},
		{"ErrAccountMismatch", ErrAccountMismatch, goerrors.CategoryConflict, TextCodeAccountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.textCode, tt.err.TextCode)
		})
	}
}
