package social

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// UserResolver extracts the acting user from a request, typically from the
// host application's session or token middleware.
type UserResolver func(ctx router.Context) (string, error)

// HTTPController exposes the connector over HTTP.
type HTTPController struct {
	connector *Connector
	config    HTTPConfig
	logger    Logger
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// PathPrefix for routes (default: "/auth")
	PathPrefix string

	// UserResolver identifies the acting user. Routes that need one answer
	// 401 when it is unset or returns empty.
	UserResolver UserResolver

	// SuccessRedirect is where the browser lands after a completed
	// authorization (default: "/")
	SuccessRedirect string

	// ErrorRedirect is where the browser lands after a failed one; the
	// failure's text code is appended as an error query param (default: "/")
	ErrorRedirect string

	// ErrorHandler overrides JSON error rendering (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

// NewHTTPController creates a controller for the connector.
func NewHTTPController(connector *Connector, cfg HTTPConfig) *HTTPController {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/auth"
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/"
	}

	return &HTTPController{
		connector: connector,
		config:    cfg,
		logger:    defLogger{},
	}
}

// WithLogger sets the logger used for request diagnostics.
func (c *HTTPController) WithLogger(logger Logger) *HTTPController {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// RegisterRoutes registers connection routes. The bare provider route goes
// last so the static paths match first.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/providers", c.ListProviders)
	group.Get("/connections", c.ListConnections)
	group.Get("/:provider/callback", c.Callback)
	group.Get("/:provider/content", c.Content)
	group.Delete("/:provider", c.Disconnect)
	group.Get("/:provider", c.BeginAuth)
}

// ListProviders returns available providers, plus the user's connected set
// when a user resolves.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	payload := map[string]any{
		"providers": c.connector.Providers(),
	}

	if userID, ok := c.currentUser(ctx); ok {
		connected, err := c.connector.ListConnected(ctx.Context(), userID)
		if err == nil {
			payload["connected"] = connected
		}
	}

	return ctx.JSON(router.StatusOK, payload)
}

// ListConnections returns the current user's connections, tokens excluded.
func (c *HTTPController) ListConnections(ctx router.Context) error {
	userID, ok := c.currentUser(ctx)
	if !ok {
		return c.unauthorized(ctx)
	}

	connections, err := c.connector.ListConnections(ctx.Context(), userID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"connections": connections,
	})
}

// BeginAuth redirects the browser to the provider's consent screen.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	userID, ok := c.currentUser(ctx)
	if !ok {
		return c.unauthorized(ctx)
	}

	provider := ctx.Param("provider")

	redirect, err := c.connector.BeginAuth(ctx.Context(), userID, provider)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// Callback handles the provider redirect. All outcomes leave through a
// browser redirect; the connector decides what the callback means.
func (c *HTTPController) Callback(ctx router.Context) error {
	provider := ctx.Param("provider")

	conn, err := c.connector.CompleteAuth(ctx.Context(), provider, Callback{
		Code:             ctx.Query("code"),
		State:            ctx.Query("state"),
		ErrorCode:        ctx.Query("error"),
		ErrorDescription: ctx.Query("error_description"),
	})
	if err != nil {
		return c.redirectError(ctx, provider, err)
	}

	redirectURL := appendQueryParam(c.config.SuccessRedirect, "connected", conn.Provider)
	return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
}

// Content returns recent items for the current user on a provider.
func (c *HTTPController) Content(ctx router.Context) error {
	userID, ok := c.currentUser(ctx)
	if !ok {
		return c.unauthorized(ctx)
	}

	provider := ctx.Param("provider")

	limit := 0
	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ctx.JSON(router.StatusBadRequest, map[string]any{
				"error": "limit must be a non-negative integer",
			})
		}
		limit = n
	}

	items, err := c.connector.FetchRecent(ctx.Context(), userID, provider, limit)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"provider": provider,
		"items":    items,
		"count":    len(items),
	})
}

// Disconnect removes the current user's connection on a provider.
func (c *HTTPController) Disconnect(ctx router.Context) error {
	userID, ok := c.currentUser(ctx)
	if !ok {
		return c.unauthorized(ctx)
	}

	provider := ctx.Param("provider")

	if err := c.connector.Disconnect(ctx.Context(), userID, provider); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status":   "disconnected",
		"provider": provider,
	})
}

func (c *HTTPController) currentUser(ctx router.Context) (string, bool) {
	if c.config.UserResolver == nil {
		return "", false
	}

	userID, err := c.config.UserResolver(ctx)
	if err != nil || userID == "" {
		return "", false
	}
	return userID, true
}

func (c *HTTPController) unauthorized(ctx router.Context) error {
	return ctx.JSON(router.StatusUnauthorized, map[string]any{
		"error": "authentication required",
	})
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	richErr := c.asRichError(err)

	c.logger.Info("request failed",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return ctx.JSON(statusFor(richErr), map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
			"category":  richErr.Category,
			"metadata":  richErr.Metadata,
		},
	})
}

func (c *HTTPController) redirectError(ctx router.Context, provider string, err error) error {
	richErr := c.asRichError(err)

	c.logger.Info("authorization callback failed",
		"provider", provider,
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	code := richErr.TextCode
	if code == "" {
		code = "social_auth_failed"
	}

	redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", code)
	redirectURL = appendQueryParam(redirectURL, "provider", provider)
	return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
}

func (c *HTTPController) asRichError(err error) *goerrors.Error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected error occurred").
			WithCode(goerrors.CodeInternal)
	}
	return richErr
}

func statusFor(richErr *goerrors.Error) int {
	if richErr.Code > 0 {
		return richErr.Code
	}
	if richErr.Category == goerrors.CategoryRateLimit {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
