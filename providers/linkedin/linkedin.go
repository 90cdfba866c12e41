package linkedin

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

const providerName = "linkedin"

const (
	defaultAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	defaultTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	defaultAPIURL   = "https://api.linkedin.com"
)

// LinkedIn access tokens run for sixty days and cannot be refreshed.
const defaultTokenLifetime = 60 * 24 * time.Hour

// Config holds LinkedIn OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL  string
	TokenURL string
	// APIURL is the base for v2 API requests.
	APIURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default LinkedIn scopes.
func DefaultScopes() []string {
	return []string{"r_liteprofile", "r_emailaddress", "w_member_social"}
}

// Provider implements social.Provider for LinkedIn. Shares paginate by
// offset rather than cursor, so the cursor we hand back is the next start
// index rendered as a string.
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ social.Provider = (*Provider)(nil)

// New creates a new LinkedIn provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
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
		DisplayName:     "LinkedIn",
		AuthURL:         p.config.AuthURL,
		TokenURL:        p.config.TokenURL,
		Scopes:          append([]string(nil), p.config.Scopes...),
		SupportsRefresh: false,
		SupportsContent: true,
		UsesPKCE:        false,
		DefaultLifetime: defaultTokenLifetime,
	}
}

// AuthCodeURL implements social.Provider.
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
		"scope":         {strings.Join(scopes, " ")},
		"state":         {state},
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange implements social.Provider. Client credentials ride in the form
// body; LinkedIn rejects Basic auth on this endpoint.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.config.CallbackURL},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := p.do(req)
	if err != nil {
		return nil, err
	}

	var tokenResp linkedinTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, p.providerError("exchange", status, "invalid_response", "failed to decode token response", err, nil)
	}

	if status != http.StatusOK || tokenResp.Error != "" {
		code, desc, raw := parseLinkedInError(body)
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
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// RefreshToken implements social.Provider. LinkedIn has no refresh grant
// for standard applications.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	return nil, p.providerError("refresh", 0, "unsupported", "linkedin does not support token refresh", nil, nil)
}

// UserInfo implements social.Provider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	me, err := p.me(ctx, "user_info", token.AccessToken)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(me.LocalizedFirstName + " " + me.LocalizedLastName)

	return &social.Profile{
		ProviderUserID: me.ID,
		Provider:       providerName,
		Name:           name,
		FirstName:      me.LocalizedFirstName,
		LastName:       me.LocalizedLastName,
		Raw: map[string]any{
			"id":                 me.ID,
			"localizedFirstName": me.LocalizedFirstName,
			"localizedLastName":  me.LocalizedLastName,
		},
	}, nil
}

// FetchContent implements social.Provider, reading the member's shares.
func (p *Provider) FetchContent(ctx context.Context, token *social.Token, req social.ContentRequest) (*social.ContentPage, error) {
	me, err := p.me(ctx, "content", token.AccessToken)
	if err != nil {
		return nil, err
	}

	start := 0
	if req.Cursor != "" {
		parsed, err := strconv.Atoi(req.Cursor)
		if err != nil || parsed < 0 {
			return nil, p.providerError("content", 0, "invalid_cursor", "cursor is not a share offset", err, nil)
		}
		start = parsed
	}

	params := url.Values{
		"q":      {"owners"},
		"owners": {"urn:li:person:" + me.ID},
		"sortBy": {"CREATED"},
	}
	if req.Limit > 0 {
		params.Set("count", strconv.Itoa(req.Limit))
	}
	if start > 0 {
		params.Set("start", strconv.Itoa(start))
	}

	status, body, err := p.get(ctx, p.config.APIURL+"/v2/shares?"+params.Encode(), token.AccessToken)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		code, desc, raw := parseLinkedInError(body)
		return nil, p.providerError("content", status, code, desc, nil, raw)
	}

	var feed linkedinSharesResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, p.providerError("content", status, "invalid_response", "failed to decode shares response", err, nil)
	}

	items := make([]social.ContentItem, 0, len(feed.Elements))
	for _, share := range feed.Elements {
		text := share.Commentary.Text
		if text == "" {
			text = share.Text.Text
		}

		postedAt := time.Time{}
		if share.Created.Time > 0 {
			postedAt = time.UnixMilli(share.Created.Time)
		}

		id := share.ID.String()
		items = append(items, social.ContentItem{
			Provider:  providerName,
			ID:        id,
			Text:      text,
			PostedAt:  postedAt,
			MediaType: "text",
			Permalink: "https://www.linkedin.com/feed/update/urn:li:share:" + id,
		})
	}

	next := ""
	if served := feed.Paging.Start + feed.Paging.Count; feed.Paging.Count > 0 && served < feed.Paging.Total {
		next = strconv.Itoa(served)
	}

	return &social.ContentPage{Items: items, NextCursor: next}, nil
}

func (p *Provider) me(ctx context.Context, operation, accessToken string) (*linkedinProfile, error) {
	status, body, err := p.get(ctx, p.config.APIURL+"/v2/me", accessToken)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		code, desc, raw := parseLinkedInError(body)
		return nil, p.providerError(operation, status, code, desc, nil, raw)
	}

	var me linkedinProfile
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, p.providerError(operation, status, "invalid_response", "failed to decode profile response", err, nil)
	}
	if me.ID == "" {
		return nil, p.providerError(operation, status, "missing_user", "profile response carried no id", nil, nil)
	}

	return &me, nil
}

func (p *Provider) get(ctx context.Context, endpoint, accessToken string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

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

// linkedinID tolerates share ids arriving as JSON numbers or strings.
type linkedinID string

func (u *linkedinID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*u = linkedinID(s)
	return nil
}

func (u linkedinID) String() string {
	return string(u)
}

type linkedinTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

type linkedinProfile struct {
	ID                 string `json:"id"`
	LocalizedFirstName string `json:"localizedFirstName"`
	LocalizedLastName  string `json:"localizedLastName"`
}

type linkedinText struct {
	Text string `json:"text"`
}

type linkedinSharesResponse struct {
	Elements []struct {
		ID         linkedinID   `json:"id"`
		Commentary linkedinText `json:"commentary"`
		Text       linkedinText `json:"text"`
		Created    struct {
			Time int64 `json:"time"`
		} `json:"created"`
	} `json:"elements"`
	Paging struct {
		Count int `json:"count"`
		Start int `json:"start"`
		Total int `json:"total"`
	} `json:"paging"`
}

type linkedinOAuthError struct {
	Error     string `json:"error"`
	ErrorDesc string `json:"error_description"`
}

type linkedinAPIError struct {
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Message          string `json:"message"`
	Status           int    `json:"status"`
}

func parseLinkedInError(body []byte) (string, string, map[string]any) {
	var oauthErr linkedinOAuthError
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error != "" {
		return oauthErr.Error, oauthErr.ErrorDesc, map[string]any{
			"error":             oauthErr.Error,
			"error_description": oauthErr.ErrorDesc,
		}
	}

	var apiErr linkedinAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return strconv.Itoa(apiErr.ServiceErrorCode), apiErr.Message, map[string]any{
			"serviceErrorCode": apiErr.ServiceErrorCode,
			"message":          apiErr.Message,
			"status":           apiErr.Status,
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "linkedin request failed"
	}

	return "", msg, nil
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
