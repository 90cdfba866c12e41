package social

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func staticUserResolver(userID string) UserResolver {
	return func(ctx router.Context) (string, error) {
		return userID, nil
	}
}

func captureRedirect(ctx *router.MockContext, gotURL *string) {
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).
		Return(nil).
		Run(func(args mock.Arguments) {
			*gotURL = args.String(0)
		})
}

func captureJSON(ctx *router.MockContext, status int, payload *map[string]any) {
	ctx.On("JSON", status, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			*payload = args.Get(1).(map[string]any)
		})
}

func TestHTTPControllerBeginAuthRedirects(t *testing.T) {
	provider := &fakeProvider{
		name: "twitter",
		meta: Metadata{Name: "twitter", UsesPKCE: true},
	}
	connector, _, _ := newTestConnector(t, provider)
	controller := NewHTTPController(connector, HTTPConfig{
		UserResolver: staticUserResolver("user-1"),
	})

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "twitter"
	ctx.On("Context").Return(context.Background())

	var gotURL string
	captureRedirect(ctx, &gotURL)

	require.NoError(t, controller.BeginAuth(ctx))
	assert.Contains(t, gotURL, "https://provider.test/authorize")
	assert.Contains(t, gotURL, "state=")
	assert.Contains(t, gotURL, "code_challenge=")
	ctx.AssertExpectations(t)
}

func TestHTTPControllerBeginAuthRequiresUser(t *testing.T) {
	connector, _, _ := newTestConnector(t, &fakeProvider{name: "twitter"})
	controller := NewHTTPController(connector, HTTPConfig{})

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "twitter"

	var payload map[string]any
	captureJSON(ctx, router.StatusUnauthorized, &payload)

	require.NoError(t, controller.BeginAuth(ctx))
	assert.Equal(t, "authentication required", payload["error"])
	ctx.AssertExpectations(t)
}

func TestHTTPControllerCallbackRedirectsOnSuccess(t *testing.T) {
	provider := &fakeProvider{name: "instagram"}
	connector, _, _ := newTestConnector(t, provider)
	controller := NewHTTPController(connector, HTTPConfig{
		UserResolver:    staticUserResolver("user-1"),
		SuccessRedirect: "/dashboard",
		ErrorRedirect:   "/settings",
	})

	redirect, err := connector.BeginAuth(context.Background(), "user-1", "instagram")
	require.NoError(t, err)

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "instagram"
	ctx.QueriesM["code"] = "the-code"
	ctx.QueriesM["state"] = redirect.State
	ctx.On("Context").Return(context.Background())

	var gotURL string
	captureRedirect(ctx, &gotURL)

	require.NoError(t, controller.Callback(ctx))

	parsed, err := url.Parse(gotURL)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", parsed.Path)
	assert.Equal(t, "instagram", parsed.Query().Get("connected"))
	ctx.AssertExpectations(t)
}

func TestHTTPControllerCallbackRedirectsErrors(t *testing.T) {
	provider := &fakeProvider{name: "instagram"}
	connector, _, _ := newTestConnector(t, provider)
	controller := NewHTTPController(connector, HTTPConfig{
		SuccessRedirect: "/dashboard",
		ErrorRedirect:   "/settings",
	})

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "instagram"
	ctx.QueriesM["error"] = "access_denied"
	ctx.On("Context").Return(context.Background())

	var gotURL string
	captureRedirect(ctx, &gotURL)

	require.NoError(t, controller.Callback(ctx))

	parsed, err := url.Parse(gotURL)
	require.NoError(t, err)
	assert.Equal(t, "/settings", parsed.Path)
	assert.Equal(t, TextCodeUserDenied, parsed.Query().Get("error"))
	assert.Equal(t, "instagram", parsed.Query().Get("provider"))
	ctx.AssertExpectations(t)
}

func TestHTTPControllerContentReturnsItems(t *testing.T) {
	provider := &fakeProvider{
		name: "instagram",
		meta: Metadata{Name: "instagram", SupportsContent: true},
		fetchFn: func(ctx context.Context, token *Token, req ContentRequest) (*ContentPage, error) {
			return &ContentPage{Items: contentItems("instagram", 2, 0)}, nil
		},
	}
	connector, store, _ := newTestConnector(t, provider)
	require.NoError(t, store.Upsert(context.Background(), testConnection("user-1", "instagram")))

	controller := NewHTTPController(connector, HTTPConfig{
		UserResolver: staticUserResolver("user-1"),
	})

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "instagram"
	ctx.QueriesM["limit"] = "2"
	ctx.On("Context").Return(context.Background())

	var payload map[string]any
	captureJSON(ctx, router.StatusOK, &payload)

	require.NoError(t, controller.Content(ctx))
	assert.Equal(t, "instagram", payload["provider"])
	assert.Equal(t, 2, payload["count"])
	assert.Len(t, payload["items"], 2)
	ctx.AssertExpectations(t)
}

func TestHTTPControllerContentRejectsBadLimit(t *testing.T) {
	connector, _, _ := newTestConnector(t, &fakeProvider{name: "instagram"})
	controller := NewHTTPController(connector, HTTPConfig{
		UserResolver: staticUserResolver("user-1"),
	})

	for _, limit := range []string{"nope", "-1"} {
		ctx := router.NewMockContext()
		ctx.ParamsM["provider"] = "instagram"
		ctx.QueriesM["limit"] = limit

		var payload map[string]any
		captureJSON(ctx, router.StatusBadRequest, &payload)

		require.NoError(t, controller.Content(ctx))
		assert.Equal(t, "limit must be a non-negative integer", payload["error"])
		ctx.AssertExpectations(t)
	}
}

func TestHTTPControllerErrorJSON(t *testing.T) {
	provider := &fakeProvider{
		name: "google",
		meta: Metadata{Name: "google", SupportsContent: false},
	}
	connector, store, _ := newTestConnector(t, provider)
	require.NoError(t, store.Upsert(context.Background(), testConnection("user-1", "google")))

	controller := NewHTTPController(connector, HTTPConfig{
		UserResolver: staticUserResolver("user-1"),
	})

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "google"
	ctx.On("Context").Return(context.Background())

	var gotStatus int
	var payload map[string]any
	ctx.On("JSON", mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			gotStatus = args.Int(0)
			payload = args.Get(1).(map[string]any)
		})

	require.NoError(t, controller.Content(ctx))
	assert.Equal(t, http.StatusBadRequest, gotStatus)

	errBody, ok := payload["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, TextCodeNotSupported, errBody["text_code"])
	ctx.AssertExpectations(t)
}

func TestHTTPControllerDisconnect(t *testing.T) {
	provider := &fakeProvider{name: "instagram"}
	connector, store, _ := newTestConnector(t, provider)
	require.NoError(t, store.Upsert(context.Background(), testConnection("user-1", "instagram")))

	controller := NewHTTPController(connector, HTTPConfig{
		UserResolver: staticUserResolver("user-1"),
	})

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "instagram"
	ctx.On("Context").Return(context.Background())

	var payload map[string]any
	captureJSON(ctx, router.StatusOK, &payload)

	require.NoError(t, controller.Disconnect(ctx))
	assert.Equal(t, "disconnected", payload["status"])
	assert.Equal(t, "instagram", payload["provider"])
	ctx.AssertExpectations(t)
}

func TestHTTPControllerListProviders(t *testing.T) {
	twitter := &fakeProvider{
		name: "twitter",
		meta: Metadata{Name: "twitter", DisplayName: "Twitter / X", SupportsContent: true},
	}
	connector, store, _ := newTestConnector(t, twitter)
	require.NoError(t, store.Upsert(context.Background(), testConnection("user-1", "twitter")))

	controller := NewHTTPController(connector, HTTPConfig{
		UserResolver: staticUserResolver("user-1"),
	})

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())

	var payload map[string]any
	captureJSON(ctx, router.StatusOK, &payload)

	require.NoError(t, controller.ListProviders(ctx))

	infos, ok := payload["providers"].([]ProviderInfo)
	require.True(t, ok)
	require.Len(t, infos, 1)
	assert.Equal(t, "twitter", infos[0].Name)

	connected, ok := payload["connected"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"twitter"}, connected)
	ctx.AssertExpectations(t)
}

func TestHTTPControllerListConnections(t *testing.T) {
	provider := &fakeProvider{name: "instagram"}
	connector, store, _ := newTestConnector(t, provider)
	require.NoError(t, store.Upsert(context.Background(), testConnection("user-1", "instagram")))

	controller := NewHTTPController(connector, HTTPConfig{
		UserResolver: staticUserResolver("user-1"),
	})

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())

	var payload map[string]any
	captureJSON(ctx, router.StatusOK, &payload)

	require.NoError(t, controller.ListConnections(ctx))

	conns, ok := payload["connections"].([]*Connection)
	require.True(t, ok)
	require.Len(t, conns, 1)
	assert.Empty(t, conns[0].AccessToken)
	assert.Equal(t, "account-1", conns[0].ProviderAccountID)
	ctx.AssertExpectations(t)
}

func TestStatusForMapsTaxonomy(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(ErrUnknownProvider))
	assert.Equal(t, http.StatusBadRequest, statusFor(ErrInvalidState))
	assert.Equal(t, http.StatusUnauthorized, statusFor(ErrTokenExpired))
	assert.Equal(t, http.StatusConflict, statusFor(ErrAccountMismatch))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, statusFor(ErrProviderUnavailable))
}

func TestAppendQueryParam(t *testing.T) {
	assert.Equal(t, "/done?connected=instagram", appendQueryParam("/done", "connected", "instagram"))
	assert.Equal(t, "/done?a=1&connected=instagram", appendQueryParam("/done?a=1", "connected", "instagram"))
	assert.Equal(t, "", appendQueryParam("", "connected", "instagram"))
}
