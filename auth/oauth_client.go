package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-twitch/core"
)

const (
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
	GrantAuthorizationCode = "authorization_code"

	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

type OAuthConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Now          func() time.Time
}

// Token is an issued OAuth token. App tokens carry no refresh token.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scopes       []string  `json:"scope,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"-"`
	ClientID     string    `json:"-"`
	UserID       string    `json:"-"`
	Login        string    `json:"-"`
}

func (t Token) Credential() core.Credential {
	cred := core.Credential{
		AccessToken: t.AccessToken,
		ClientID:    t.ClientID,
		Scopes:      append([]string(nil), t.Scopes...),
		UserID:      t.UserID,
		Login:       t.Login,
	}
	if !t.ExpiresAt.IsZero() {
		expiresAt := t.ExpiresAt
		cred.ExpiresAt = &expiresAt
	}
	return cred
}

// FreshUntil reports whether the token is still usable renewBefore ahead of now.
// Tokens without an expiry are always fresh.
func (t Token) FreshUntil(now time.Time, renewBefore time.Duration) bool {
	if strings.TrimSpace(t.AccessToken) == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return t.ExpiresAt.After(now.Add(renewBefore))
}

type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

type AuthorizeRequest struct {
	ResponseType string
	Scopes       []string
	State        string
	ForceVerify  bool
}

// OAuthClient talks to the id.twitch.tv OAuth2 endpoints over any transport.
type OAuthClient struct {
	transport core.TransportAdapter
	config    OAuthConfig
}

func NewOAuthClient(transport core.TransportAdapter, cfg OAuthConfig) (*OAuthClient, error) {
	if transport == nil {
		return nil, fmt.Errorf("auth: transport adapter is required")
	}
	cfg.BaseURL = strings.TrimRight(firstNonEmpty(cfg.BaseURL, core.DefaultOAuthBaseURL), "/")
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("auth: client id is required")
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &OAuthClient{transport: transport, config: cfg}, nil
}

func (c *OAuthClient) ClientID() string {
	return c.config.ClientID
}

// ClientCredentials issues an app access token.
func (c *OAuthClient) ClientCredentials(ctx context.Context, scopes ...string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", GrantClientCredentials)
	if joined := JoinScopes(scopes); joined != "" {
		form.Set("scope", joined)
	}
	return c.token(ctx, "client_credentials", form)
}

func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Token{}, core.NewError(core.KindAuthenticationRejected, "oauth refresh", "refresh token is required")
	}
	form := url.Values{}
	form.Set("grant_type", GrantRefreshToken)
	form.Set("refresh_token", refreshToken)
	token, err := c.token(ctx, "refresh", form)
	if err != nil {
		return Token{}, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// ExchangeCode completes the authorization code flow.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Token{}, core.NewError(core.KindInvalidRequest, "oauth exchange", "authorization code is required")
	}
	form := url.Values{}
	form.Set("grant_type", GrantAuthorizationCode)
	form.Set("code", code)
	form.Set("redirect_uri", c.config.RedirectURI)
	return c.token(ctx, "exchange", form)
}

// Validate checks a token against /validate. An invalid token yields
// AuthenticationRejected.
func (c *OAuthClient) Validate(ctx context.Context, accessToken string) (Validation, error) {
	const op = "oauth validate"
	res, err := c.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     c.config.BaseURL + "/validate",
		Headers: map[string]string{"Authorization": "OAuth " + strings.TrimSpace(accessToken)},
	})
	if err != nil {
		return Validation{}, core.WrapError(core.KindTransportFailure, op, "exchange failed", err)
	}
	if err := classifyOAuthStatus(op, res); err != nil {
		return Validation{}, err
	}
	var out Validation
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return Validation{}, malformedOAuth(op, res, err)
	}
	out.Scopes = normalizeValues(out.Scopes)
	return out, nil
}

func (c *OAuthClient) Revoke(ctx context.Context, accessToken string) error {
	const op = "oauth revoke"
	form := url.Values{}
	form.Set("client_id", c.config.ClientID)
	form.Set("token", strings.TrimSpace(accessToken))
	res, err := c.transport.Do(ctx, formRequest(c.config.BaseURL+"/revoke", form))
	if err != nil {
		return core.WrapError(core.KindTransportFailure, op, "exchange failed", err)
	}
	return classifyOAuthStatus(op, res)
}

// AuthorizeURL builds the /authorize redirect for the code or implicit flow.
func (c *OAuthClient) AuthorizeURL(req AuthorizeRequest) string {
	query := url.Values{}
	query.Set("client_id", c.config.ClientID)
	query.Set("redirect_uri", c.config.RedirectURI)
	query.Set("response_type", firstNonEmpty(req.ResponseType, ResponseTypeCode))
	query.Set("scope", JoinScopes(req.Scopes))
	if state := strings.TrimSpace(req.State); state != "" {
		query.Set("state", state)
	}
	if req.ForceVerify {
		query.Set("force_verify", "true")
	}
	return c.config.BaseURL + "/authorize?" + query.Encode()
}

func (c *OAuthClient) token(ctx context.Context, grant string, form url.Values) (Token, error) {
	op := "oauth " + grant
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	res, err := c.transport.Do(ctx, formRequest(c.config.BaseURL+"/token", form))
	if err != nil {
		return Token{}, core.WrapError(core.KindTransportFailure, op, "exchange failed", err)
	}
	if err := classifyOAuthStatus(op, res); err != nil {
		return Token{}, err
	}
	var token Token
	if err := json.Unmarshal(res.Body, &token); err != nil {
		return Token{}, malformedOAuth(op, res, err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return Token{}, malformedOAuth(op, res, fmt.Errorf("missing access_token"))
	}
	token.Scopes = normalizeValues(token.Scopes)
	token.ClientID = c.config.ClientID
	if token.ExpiresIn > 0 {
		token.ExpiresAt = c.config.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return token, nil
}

func formRequest(target string, form url.Values) core.TransportRequest {
	return core.TransportRequest{
		Method: http.MethodPost,
		URL:    target,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Accept":       "application/json",
		},
		Body: []byte(form.Encode()),
	}
}

// classifyOAuthStatus maps non-2xx OAuth replies. 400, 401 and 403 mean the
// grant or token was refused.
func classifyOAuthStatus(op string, res core.TransportResponse) error {
	status := res.StatusCode
	if status >= 200 && status < 300 {
		return nil
	}
	kind := core.KindRequestRejected
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = core.KindAuthenticationRejected
	case status == http.StatusTooManyRequests:
		kind = core.KindRateLimited
	case status >= 500:
		kind = core.KindServerError
	case status < 400:
		kind = core.KindMalformedResponse
	}
	err := &core.Error{
		Kind:          kind,
		Op:            op,
		StatusCode:    status,
		Message:       "status " + strconv.Itoa(status),
		ServerMessage: core.ServerMessage(res.Body),
		Body:          append([]byte(nil), res.Body...),
	}
	if kind == core.KindRateLimited {
		info := core.ParseRateLimit(res.Headers)
		err.RateLimit = &info
	}
	return err
}

func malformedOAuth(op string, res core.TransportResponse, cause error) error {
	return &core.Error{
		Kind:       core.KindMalformedResponse,
		Op:         op,
		StatusCode: res.StatusCode,
		Message:    "response does not match expected shape",
		Body:       append([]byte(nil), res.Body...),
		Err:        cause,
	}
}
