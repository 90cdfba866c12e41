package twitter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	social "github.com/goliatone/go-social"
)

const providerName = "twitter"

const (
	defaultAuthURL  = "https://twitter.com/i/oauth2/authorize"
	defaultTokenURL = "https://api.twitter.com/2/oauth2/token"
	defaultAPIURL   = "https://api.twitter.com"

	// The v2 timeline endpoint rejects page sizes outside this range.
	minPageSize = 5
	maxPageSize = 100
)

// Config holds Twitter (X) OAuth configuration.
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

// DefaultScopes returns the default Twitter scopes. offline.access is what
// makes Twitter hand out a refresh token.
func DefaultScopes() []string {
	return []string{"tweet.read", "users.read", "follows.read", "offline.access"}
}

// Provider implements social.Provider for Twitter. The token endpoint
// authenticates with Basic credentials and requires PKCE on every grant;
// refresh tokens rotate on each use.
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ social.Provider = (*Provider)(nil)

// New creates a new Twitter provider.
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
		DisplayName:     "Twitter / X",
		AuthURL:         p.config.AuthURL,
		TokenURL:        p.config.TokenURL,
		Scopes:          append([]string(nil), p.config.Scopes...),
		SupportsRefresh: true,
		SupportsContent: true,
		UsesPKCE:        true,
		DefaultLifetime: 2 * time.Hour,
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

	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params.Set("code_challenge", cfg.CodeChallenge)
		params.Set("code_challenge_method", method)
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange implements social.Provider.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	data := url.Values{
		"code":         {code},
		"grant_type":   {"authorization_code"},
		"redirect_uri": {p.config.CallbackURL},
	}
	if cfg.CodeVerifier != "" {
		data.Set("code_verifier", cfg.CodeVerifier)
	}

	return p.tokenGrant(ctx, "exchange", data, "")
}

// RefreshToken implements social.Provider. The response carries a new
// refresh token; the one presented here is dead afterwards.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*social.Token, error) {
	data := url.Values{
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	return p.tokenGrant(ctx, "refresh", data, refreshToken)
}

// UserInfo implements social.Provider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	me, err := p.usersMe(ctx, "user_info", token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &social.Profile{
		ProviderUserID: me.ID,
		Provider:       providerName,
		Name:           me.Name,
		Username:       me.Username,
		AvatarURL:      me.ProfileImageURL,
		ProfileURL:     "https://twitter.com/" + me.Username,
		Raw: map[string]any{
			"id":                me.ID,
			"name":              me.Name,
			"username":          me.Username,
			"profile_image_url": me.ProfileImageURL,
			"followers_count":   me.PublicMetrics.FollowersCount,
			"following_count":   me.PublicMetrics.FollowingCount,
			"tweet_count":       me.PublicMetrics.TweetCount,
		},
	}, nil
}

// FetchContent implements social.Provider, reading the user's own timeline.
func (p *Provider) FetchContent(ctx context.Context, token *social.Token, req social.ContentRequest) (*social.ContentPage, error) {
	me, err := p.usersMe(ctx, "content", token.AccessToken)
	if err != nil {
		return nil, err
	}

	pageSize := req.Limit
	if pageSize < minPageSize {
		pageSize = minPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	params := url.Values{
		"max_results":  {strconv.Itoa(pageSize)},
		"tweet.fields": {"created_at,public_metrics"},
	}
	if req.Cursor != "" {
		params.Set("pagination_token", req.Cursor)
	}

	endpoint := p.config.APIURL + "/2/users/" + me.ID + "/tweets?" + params.Encode()
	status, body, header, err := p.getJSON(ctx, endpoint, token.AccessToken)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, p.apiError("content", status, body, header)
	}

	var timeline twitterTimelineResponse
	if err := json.Unmarshal(body, &timeline); err != nil {
		return nil, p.providerError("content", status, "invalid_response", "failed to decode timeline response", err, nil)
	}

	items := make([]social.ContentItem, 0, len(timeline.Data))
	for _, tweet := range timeline.Data {
		postedAt, _ := time.Parse(time.RFC3339, tweet.CreatedAt)
		items = append(items, social.ContentItem{
			Provider: providerName,
			ID:       tweet.ID,
			Text:     tweet.Text,
			PostedAt: postedAt,
			Metrics: map[string]int{
				"retweets": tweet.PublicMetrics.RetweetCount,
				"replies":  tweet.PublicMetrics.ReplyCount,
				"likes":    tweet.PublicMetrics.LikeCount,
				"quotes":   tweet.PublicMetrics.QuoteCount,
			},
			MediaType: "text",
			Permalink: "https://twitter.com/" + me.Username + "/status/" + tweet.ID,
		})
	}

	return &social.ContentPage{
		Items:      items,
		NextCursor: timeline.Meta.NextToken,
	}, nil
}

func (p *Provider) tokenGrant(ctx context.Context, operation string, data url.Values, fallbackRefresh string) (*social.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basicAuth(p.config.ClientID, p.config.ClientSecret))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var tokenResp twitterTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, p.providerError(operation, resp.StatusCode, "invalid_response", "failed to decode token response", err, nil)
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		pe := p.providerError(operation, resp.StatusCode, tokenResp.Error, tokenResp.ErrorDesc, nil, map[string]any{
			"error":             tokenResp.Error,
			"error_description": tokenResp.ErrorDesc,
		})
		pe.RetryAfter = retryAfterFromHeaders(resp.Header)
		return nil, pe
	}
	if tokenResp.AccessToken == "" {
		return nil, p.providerError(operation, resp.StatusCode, "missing_access_token", "missing access token", nil, nil)
	}

	refreshToken := tokenResp.RefreshToken
	if refreshToken == "" {
		refreshToken = fallbackRefresh
	}

	expiresAt := time.Time{}
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return &social.Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       strings.Fields(tokenResp.Scope),
	}, nil
}

func (p *Provider) usersMe(ctx context.Context, operation, accessToken string) (*twitterUser, error) {
	endpoint := p.config.APIURL + "/2/users/me?" + url.Values{
		"user.fields": {"public_metrics,profile_image_url"},
	}.Encode()

	status, body, header, err := p.getJSON(ctx, endpoint, accessToken)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, p.apiError(operation, status, body, header)
	}

	var me twitterMeResponse
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, p.providerError(operation, status, "invalid_response", "failed to decode user response", err, nil)
	}
	if me.Data.ID == "" {
		return nil, p.providerError(operation, status, "missing_user", "user response carried no id", nil, nil)
	}

	return &me.Data, nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint, accessToken string) (int, []byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, resp.Header, err
	}

	return resp.StatusCode, body, resp.Header, nil
}

func (p *Provider) apiError(operation string, status int, body []byte, header http.Header) *social.ProviderError {
	code, desc, raw := parseTwitterError(body)
	pe := p.providerError(operation, status, code, desc, nil, raw)
	pe.RetryAfter = retryAfterFromHeaders(header)
	return pe
}

type twitterTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

type twitterUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
	PublicMetrics   struct {
		FollowersCount int `json:"followers_count"`
		FollowingCount int `json:"following_count"`
		TweetCount     int `json:"tweet_count"`
	} `json:"public_metrics"`
}

type twitterMeResponse struct {
	Data twitterUser `json:"data"`
}

type twitterTimelineResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
			LikeCount    int `json:"like_count"`
			QuoteCount   int `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type twitterProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func parseTwitterError(body []byte) (string, string, map[string]any) {
	var problem twitterProblem
	if err := json.Unmarshal(body, &problem); err == nil {
		if problem.Title != "" || problem.Detail != "" {
			return problem.Title, problem.Detail, map[string]any{
				"title":  problem.Title,
				"detail": problem.Detail,
				"status": problem.Status,
				"type":   problem.Type,
			}
		}
		if len(problem.Errors) > 0 && problem.Errors[0].Message != "" {
			return "request_failed", problem.Errors[0].Message, map[string]any{
				"message": problem.Errors[0].Message,
			}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "twitter request failed"
	}

	return "", msg, nil
}

// retryAfterFromHeaders derives a wait from Twitter's rate limit reset
// stamp, an epoch in seconds.
func retryAfterFromHeaders(header http.Header) int {
	if header == nil {
		return 0
	}

	if v := header.Get("x-rate-limit-reset"); v != "" {
		if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
			if wait := reset - time.Now().Unix(); wait > 0 {
				return int(wait)
			}
		}
	}

	if v := header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return seconds
		}
	}

	return 0
}

func basicAuth(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", id, secret)))
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
