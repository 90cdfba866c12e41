package facebook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	social "github.com/goliatone/go-social"
)

const providerName = "facebook"

const (
	defaultAuthURL  = "https://www.facebook.com/v18.0/dialog/oauth"
	defaultGraphURL = "https://graph.facebook.com/v18.0"
)

// Facebook hands out sixty-day tokens on the plain web flow.
const defaultTokenLifetime = 60 * 24 * time.Hour

// Config holds Facebook OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL string
	// GraphURL is the base for the token exchange, profile, and posts
	// requests; the token endpoint lives under the graph host.
	GraphURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Facebook scopes.
func DefaultScopes() []string {
	return []string{"email", "public_profile", "user_posts", "pages_read_engagement"}
}

// Provider implements social.Provider for Facebook. The code exchange is a
// GET with query parameters rather than the usual form POST, and there is
// no refresh grant.
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ social.Provider = (*Provider)(nil)

// New creates a new Facebook provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = defaultGraphURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return providerName
}

// Metadata implements social.Provider.
func (p *Provider) Metadata() social.Metadata {
	return social.Metadata{
		Name:            providerName,
		DisplayName:     "Facebook",
		AuthURL:         p.config.AuthURL,
		TokenURL:        p.config.GraphURL + "/oauth/access_token",
		Scopes:          append([]string(nil), p.config.Scopes...),
		SupportsRefresh: false,
		SupportsContent: true,
		UsesPKCE:        false,
		DefaultLifetime: defaultTokenLifetime,
	}
}

// AuthCodeURL implements social.Provider. Facebook wants scopes comma
// separated.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(p.config.Scopes, opts...)
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}

	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.CallbackURL},
		"response_type": {"code"},
		"scope":         {strings.Join(scopes, ",")},
		"state":         {state},
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange implements social.Provider via Facebook's GET token endpoint.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	endpoint := p.config.GraphURL + "/oauth/access_token?" + url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.CallbackURL},
		"code":          {code},
	}.Encode()

	status, body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var tokenResp facebookTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, p.providerError("exchange", status, "invalid_response", "failed to decode token response", err, nil)
	}

	if status != http.StatusOK {
		code, desc, raw := parseFacebookError(body)
		return nil, p.providerError("exchange", status, code, desc, nil, raw)
	}
	if tokenResp.AccessToken == "" {
		return nil, p.providerError("exchange", status, "missing_access_token", "missing access token", nil, nil)
	}

	expiresAt := time.Time{}
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return &social.Token{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
		ExpiresAt:   expiresAt,
	}, nil
}

// RefreshToken implements social.Provider. Facebook has no refresh grant;
// lapsed tokens need a fresh consent round-trip.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return nil, p.providerError("refresh", 0, "unsupported", "facebook does not support token refresh", nil, nil)
}

// UserInfo implements social.Provider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	endpoint := p.config.GraphURL + "/me?" + url.Values{
		"fields":       {"id,name"},
		"access_token": {token.AccessToken},
	}.Encode()

	status, body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		code, desc, raw := parseFacebookError(body)
		return nil, p.providerError("user_info", status, code, desc, nil, raw)
	}

	var info facebookUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, p.providerError("user_info", status, "invalid_response", "failed to decode profile response", err, nil)
	}
	if info.ID == "" {
		return nil, p.providerError("user_info", status, "missing_user", "profile response carried no id", nil, nil)
	}

	return &social.Profile{
		ProviderUserID: info.ID,
		Provider:       providerName,
		Name:           info.Name,
		ProfileURL:     "https://www.facebook.com/" + info.ID,
		Raw: map[string]any{
			"id":   info.ID,
			"name": info.Name,
		},
	}, nil
}

// FetchContent implements social.Provider, paging through /me/posts.
func (p *Provider) FetchContent(ctx context.Context, token *social.Token, req social.ContentRequest) (*social.ContentPage, error) {
	params := url.Values{
		"fields":       {"id,message,created_time,story,full_picture,permalink_url"},
		"access_token": {token.AccessToken},
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Cursor != "" {
		params.Set("after", req.Cursor)
	}

	status, body, err := p.get(ctx, p.config.GraphURL+"/me/posts?"+params.Encode())
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		code, desc, raw := parseFacebookError(body)
		return nil, p.providerError("content", status, code, desc, nil, raw)
	}

	var feed facebookPostsResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, p.providerError("content", status, "invalid_response", "failed to decode posts response", err, nil)
	}

	items := make([]social.ContentItem, 0, len(feed.Data))
	for _, post := range feed.Data {
		text := post.Message
		if text == "" {
			text = post.Story
		}

		mediaType := "text"
		if post.FullPicture != "" {
			mediaType = "image"
		}

		items = append(items, social.ContentItem{
			Provider:  providerName,
			ID:        post.ID,
			Text:      text,
			PostedAt:  parseFacebookTime(post.CreatedTime),
			MediaType: mediaType,
			MediaURL:  post.FullPicture,
			Permalink: post.PermalinkURL,
		})
	}

	// Same trailing-cursor quirk as the rest of the Meta graph: only
	// paging.next signals another page.
	next := ""
	if feed.Paging.Next != "" {
		next = feed.Paging.Cursors.After
	}

	return &social.ContentPage{Items: items, NextCursor: next}, nil
}

func (p *Provider) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type facebookUserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type facebookPostsResponse struct {
	Data []struct {
		ID           string `json:"id"`
		Message      string `json:"message"`
		Story        string `json:"story"`
		CreatedTime  string `json:"created_time"`
		FullPicture  string `json:"full_picture"`
		PermalinkURL string `json:"permalink_url"`
	} `json:"data"`
	Paging struct {
		Cursors struct {
			Before string `json:"before"`
			After  string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

type facebookErrorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func parseFacebookError(body []byte) (string, string, map[string]any) {
	var fbErr facebookErrorResponse
	if err := json.Unmarshal(body, &fbErr); err == nil && (fbErr.Error.Message != "" || fbErr.Error.Type != "") {
		return fbErr.Error.Type, fbErr.Error.Message, map[string]any{
			"type":       fbErr.Error.Type,
			"message":    fbErr.Error.Message,
			"code":       fbErr.Error.Code,
			"subcode":    fbErr.Error.Subcode,
			"fbtrace_id": fbErr.Error.FBTraceID,
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "facebook request failed"
	}

	return "", msg, nil
}

func parseFacebookTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	// Graph stamps posts with ISO8601 minus the colon in the zone offset.
	if t, err := time.Parse("2006-01-02T15:04:05-0700", value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func (p *Provider) providerError(operation string, status int, code, description string, err error, raw map[string]any) *social.ProviderError {
	return &social.ProviderError{
		Provider:    providerName,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}
