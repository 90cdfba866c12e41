package instagram

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

const providerName = "instagram"

const (
	defaultAuthURL  = "https://api.instagram.com/oauth/authorize"
	defaultTokenURL = "https://api.instagram.com/oauth/access_token"
	defaultGraphURL = "https://graph.instagram.com"
)

// Config holds Instagram OAuth configuration. Threads rides the same Meta
// surface; set Name to "threads" to register this adapter under that alias.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	// Name overrides the provider identifier (default: "instagram").
	Name string
	// DisplayName overrides the human label shown in provider listings.
	DisplayName string

	AuthURL  string
	TokenURL string
	// GraphURL is the base for profile and media requests.
	GraphURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Instagram scopes.
func DefaultScopes() []string {
	return []string{"user_profile", "user_media"}
}

// Provider implements social.Provider for Instagram. Tokens cannot be
// refreshed; once one lapses the user reconnects through the consent flow.
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ social.Provider = (*Provider)(nil)

// New creates a new Instagram provider.
func New(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = providerName
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
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
	return p.config.Name
}

// Metadata implements social.Provider.
func (p *Provider) Metadata() social.Metadata {
	return social.Metadata{
		Name:            p.config.Name,
		DisplayName:     p.displayName(),
		AuthURL:         p.config.AuthURL,
		TokenURL:        p.config.TokenURL,
		Scopes:          append([]string(nil), p.config.Scopes...),
		SupportsRefresh: false,
		SupportsContent: true,
		UsesPKCE:        false,
		DefaultLifetime: time.Hour,
	}
}

// AuthCodeURL implements social.Provider. Instagram wants scopes comma
// separated, unlike most of the OAuth world.
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

// Exchange implements social.Provider. The grant response is a bare
// {access_token, user_id} with no expiry; the caller applies the default
// lifetime from metadata.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {p.config.CallbackURL},
		"code":          {code},
	}

	status, body, err := p.postForm(ctx, p.config.TokenURL, data)
	if err != nil {
		return nil, err
	}

	var tokenResp instagramTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, p.providerError("exchange", status, "invalid_response", "failed to decode token response", err, nil)
	}

	if status != http.StatusOK || tokenResp.ErrorType != "" {
		code, desc, raw := parseInstagramError(body)
		return nil, p.providerError("exchange", status, code, desc, nil, raw)
	}
	if tokenResp.AccessToken == "" {
		return nil, p.providerError("exchange", status, "missing_access_token", "missing access token", nil, nil)
	}

	return &social.Token{
		AccessToken: tokenResp.AccessToken,
		TokenType:   "bearer",
		Raw: map[string]any{
			"user_id": tokenResp.UserID.String(),
		},
	}, nil
}

// RefreshToken implements social.Provider. Instagram has no refresh grant.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return nil, p.providerError("refresh", 0, "unsupported", "instagram does not support token refresh", nil, nil)
}

// UserInfo implements social.Provider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	info, err := p.me(ctx, "user_info", token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &social.Profile{
		ProviderUserID: info.ID,
		Provider:       p.config.Name,
		Username:       info.Username,
		Name:           info.Username,
		ProfileURL:     "https://www.instagram.com/" + info.Username,
		Raw: map[string]any{
			"id":       info.ID,
			"username": info.Username,
		},
	}, nil
}

// FetchContent implements social.Provider, paging through the user's media
// with cursor-based pagination.
func (p *Provider) FetchContent(ctx context.Context, token *social.Token, req social.ContentRequest) (*social.ContentPage, error) {
	info, err := p.me(ctx, "content", token.AccessToken)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"fields":       {"id,caption,media_type,media_url,thumbnail_url,timestamp,permalink"},
		"access_token": {token.AccessToken},
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Cursor != "" {
		params.Set("after", req.Cursor)
	}

	status, body, err := p.get(ctx, p.config.GraphURL+"/"+info.ID+"/media?"+params.Encode())
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		code, desc, raw := parseInstagramError(body)
		return nil, p.providerError("content", status, code, desc, nil, raw)
	}

	var feed instagramMediaResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, p.providerError("content", status, "invalid_response", "failed to decode media response", err, nil)
	}

	items := make([]social.ContentItem, 0, len(feed.Data))
	for _, media := range feed.Data {
		items = append(items, social.ContentItem{
			Provider:     p.config.Name,
			ID:           media.ID,
			Text:         media.Caption,
			PostedAt:     parseInstagramTime(media.Timestamp),
			MediaType:    media.MediaType,
			MediaURL:     media.MediaURL,
			ThumbnailURL: media.ThumbnailURL,
			Permalink:    media.Permalink,
		})
	}

	// Instagram keeps handing back a cursor on the last page; only the
	// presence of paging.next means more data exists.
	next := ""
	if feed.Paging.Next != "" {
		next = feed.Paging.Cursors.After
	}

	return &social.ContentPage{Items: items, NextCursor: next}, nil
}

func (p *Provider) me(ctx context.Context, operation, accessToken string) (*instagramUserInfo, error) {
	endpoint := p.config.GraphURL + "/me?" + url.Values{
		"fields":       {"id,username"},
		"access_token": {accessToken},
	}.Encode()

	status, body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		code, desc, raw := parseInstagramError(body)
		return nil, p.providerError(operation, status, code, desc, nil, raw)
	}

	var info instagramUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, p.providerError(operation, status, "invalid_response", "failed to decode profile response", err, nil)
	}
	if info.ID == "" {
		return nil, p.providerError(operation, status, "missing_user", "profile response carried no id", nil, nil)
	}

	return &info, nil
}

func (p *Provider) postForm(ctx context.Context, endpoint string, data url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return p.do(req)
}

func (p *Provider) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}

	return p.do(req)
}

func (p *Provider) do(req *http.Request) (int, []byte, error) {
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

func (p *Provider) displayName() string {
	if p.config.DisplayName != "" {
		return p.config.DisplayName
	}
	name := p.config.Name
	if name == "" || name == providerName {
		return "Instagram"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// instagramUserID tolerates Instagram sending user_id as either a JSON
// number or a string.
type instagramUserID string

func (u *instagramUserID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*u = instagramUserID(s)
	return nil
}

func (u instagramUserID) String() string {
	return string(u)
}

type instagramTokenResponse struct {
	AccessToken string          `json:"access_token"`
	UserID      instagramUserID `json:"user_id"`
	ErrorType   string          `json:"error_type"`
	ErrorMsg    string          `json:"error_message"`
}

type instagramUserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type instagramMediaResponse struct {
	Data []struct {
		ID           string `json:"id"`
		Caption      string `json:"caption"`
		MediaType    string `json:"media_type"`
		MediaURL     string `json:"media_url"`
		ThumbnailURL string `json:"thumbnail_url"`
		Permalink    string `json:"permalink"`
		Timestamp    string `json:"timestamp"`
	} `json:"data"`
	Paging struct {
		Cursors struct {
			Before string `json:"before"`
			After  string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

type instagramOAuthError struct {
	ErrorType string `json:"error_type"`
	Code      int    `json:"code"`
	ErrorMsg  string `json:"error_message"`
}

type instagramGraphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func parseInstagramError(body []byte) (string, string, map[string]any) {
	var oauthErr instagramOAuthError
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.ErrorType != "" {
		return oauthErr.ErrorType, oauthErr.ErrorMsg, map[string]any{
			"error_type":    oauthErr.ErrorType,
			"code":          oauthErr.Code,
			"error_message": oauthErr.ErrorMsg,
		}
	}

	var graphErr instagramGraphError
	if err := json.Unmarshal(body, &graphErr); err == nil && (graphErr.Error.Message != "" || graphErr.Error.Type != "") {
		return graphErr.Error.Type, graphErr.Error.Message, map[string]any{
			"type":       graphErr.Error.Type,
			"message":    graphErr.Error.Message,
			"code":       graphErr.Error.Code,
			"subcode":    graphErr.Error.Subcode,
			"fbtrace_id": graphErr.Error.FBTraceID,
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "instagram request failed"
	}

	return "", msg, nil
}

func parseInstagramTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	// Meta stamps media with ISO8601 minus the colon in the zone offset.
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
		Provider:    p.config.Name,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}
