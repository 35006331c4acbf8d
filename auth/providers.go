package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-twitch/core"
	"golang.org/x/sync/singleflight"
)

const defaultRenewBefore = 5 * time.Minute

// StaticProvider serves one fixed credential. Once invalidated it refuses
// further use since it has no way to obtain a new token.
type StaticProvider struct {
	mu          sync.RWMutex
	credential  core.Credential
	invalidated bool
}

func NewStaticProvider(cred core.Credential) *StaticProvider {
	cred.Scopes = normalizeValues(cred.Scopes)
	return &StaticProvider{credential: cred}
}

func (p *StaticProvider) Current(context.Context) (core.Credential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.invalidated {
		return core.Credential{}, core.NewError(core.KindAuthenticationRejected, "static credential", "credential was invalidated")
	}
	cred := p.credential
	cred.Scopes = append([]string(nil), cred.Scopes...)
	return cred, nil
}

func (p *StaticProvider) Invalidate(context.Context, core.Invalidation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = true
}

// AppTokenProvider keeps an app access token from the client credentials
// grant, renewing it ahead of expiry. Concurrent renewals collapse into one
// request.
type AppTokenProvider struct {
	oauth       *OAuthClient
	scopes      []string
	renewBefore time.Duration
	now         func() time.Time

	mu    sync.RWMutex
	token Token
	group singleflight.Group
}

type AppTokenOption func(*AppTokenProvider)

func WithAppScopes(scopes ...string) AppTokenOption {
	return func(p *AppTokenProvider) {
		p.scopes = normalizeValues(scopes)
	}
}

func WithAppRenewBefore(renewBefore time.Duration) AppTokenOption {
	return func(p *AppTokenProvider) {
		if renewBefore >= 0 {
			p.renewBefore = renewBefore
		}
	}
}

func WithAppNow(now func() time.Time) AppTokenOption {
	return func(p *AppTokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func NewAppTokenProvider(oauth *OAuthClient, opts ...AppTokenOption) (*AppTokenProvider, error) {
	if oauth == nil {
		return nil, errors.New("auth: oauth client is required")
	}
	provider := &AppTokenProvider{
		oauth:       oauth,
		renewBefore: defaultRenewBefore,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider, nil
}

func (p *AppTokenProvider) Current(ctx context.Context) (core.Credential, error) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token.FreshUntil(p.now(), p.renewBefore) {
		return token.Credential(), nil
	}

	result, err, _ := p.group.Do("app", func() (any, error) {
		p.mu.RLock()
		cached := p.token
		p.mu.RUnlock()
		if cached.FreshUntil(p.now(), p.renewBefore) {
			return cached, nil
		}
		issued, err := p.oauth.ClientCredentials(ctx, p.scopes...)
		if err != nil {
			return Token{}, err
		}
		p.mu.Lock()
		p.token = issued
		p.mu.Unlock()
		return issued, nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	return result.(Token).Credential(), nil
}

// Invalidate drops the cached token when it is the one that was rejected.
func (p *AppTokenProvider) Invalidate(_ context.Context, reason core.Invalidation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reason.AccessToken == "" || reason.AccessToken == p.token.AccessToken {
		p.token = Token{}
	}
}

// UserTokenProvider serves a user token, refreshing it when it expires or is
// rejected. A refused refresh grant parks the provider until SetToken.
type UserTokenProvider struct {
	oauth       *OAuthClient
	store       TokenStore
	key         string
	renewBefore time.Duration
	now         func() time.Time

	mu       sync.RWMutex
	token    Token
	loaded   bool
	stale    bool
	rejected error
	group    singleflight.Group
}

type UserTokenOption func(*UserTokenProvider)

// WithTokenStore persists refreshed tokens under key.
func WithTokenStore(store TokenStore, key string) UserTokenOption {
	return func(p *UserTokenProvider) {
		p.store = store
		p.key = strings.TrimSpace(key)
	}
}

func WithUserRenewBefore(renewBefore time.Duration) UserTokenOption {
	return func(p *UserTokenProvider) {
		if renewBefore >= 0 {
			p.renewBefore = renewBefore
		}
	}
}

func WithUserNow(now func() time.Time) UserTokenOption {
	return func(p *UserTokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewUserTokenProvider starts from initial; when initial has no access token
// the provider loads from its store on first use.
func NewUserTokenProvider(oauth *OAuthClient, initial Token, opts ...UserTokenOption) (*UserTokenProvider, error) {
	if oauth == nil {
		return nil, errors.New("auth: oauth client is required")
	}
	provider := &UserTokenProvider{
		oauth:       oauth,
		renewBefore: defaultRenewBefore,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	if strings.TrimSpace(initial.AccessToken) != "" {
		if initial.ClientID == "" {
			initial.ClientID = oauth.ClientID()
		}
		provider.token = initial
		provider.loaded = true
	}
	return provider, nil
}

func (p *UserTokenProvider) Current(ctx context.Context) (core.Credential, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return core.Credential{}, err
	}
	p.mu.RLock()
	token, stale, rejected := p.token, p.stale, p.rejected
	p.mu.RUnlock()
	if rejected != nil {
		return core.Credential{}, rejected
	}
	if !stale && token.FreshUntil(p.now(), p.renewBefore) {
		return token.Credential(), nil
	}

	result, err, _ := p.group.Do("refresh", func() (any, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return core.Credential{}, err
	}
	return result.(Token).Credential(), nil
}

// Invalidate marks the current token stale so the next Current refreshes it.
func (p *UserTokenProvider) Invalidate(_ context.Context, reason core.Invalidation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reason.AccessToken == "" || reason.AccessToken == p.token.AccessToken {
		p.stale = true
	}
}

// SetToken replaces the token, clears any rejection and persists it.
func (p *UserTokenProvider) SetToken(ctx context.Context, token Token) error {
	if token.ClientID == "" {
		token.ClientID = p.oauth.ClientID()
	}
	token.Scopes = normalizeValues(token.Scopes)
	p.mu.Lock()
	p.token = token
	p.loaded = true
	p.stale = false
	p.rejected = nil
	p.mu.Unlock()
	return p.persist(ctx, token)
}

func (p *UserTokenProvider) Token() Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Refresh forces a refresh grant regardless of expiry.
func (p *UserTokenProvider) Refresh(ctx context.Context) (Token, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return Token{}, err
	}
	result, err, _ := p.group.Do("refresh", func() (any, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return Token{}, err
	}
	return result.(Token), nil
}

func (p *UserTokenProvider) refresh(ctx context.Context) (Token, error) {
	p.mu.RLock()
	current := p.token
	p.mu.RUnlock()

	refreshed, err := p.oauth.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if core.KindOf(err) == core.KindAuthenticationRejected {
			p.mu.Lock()
			p.rejected = err
			p.mu.Unlock()
		}
		return Token{}, err
	}
	refreshed.UserID = firstNonEmpty(refreshed.UserID, current.UserID)
	refreshed.Login = firstNonEmpty(refreshed.Login, current.Login)
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = append([]string(nil), current.Scopes...)
	}

	p.mu.Lock()
	p.token = refreshed
	p.stale = false
	p.mu.Unlock()
	if err := p.persist(ctx, refreshed); err != nil {
		return Token{}, err
	}
	return refreshed, nil
}

func (p *UserTokenProvider) ensureLoaded(ctx context.Context) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}
	if p.store == nil || p.key == "" {
		return core.NewError(core.KindAuthenticationRejected, "user credential", "no token configured")
	}
	token, err := p.store.Load(ctx, p.key)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return core.WrapError(core.KindAuthenticationRejected, "user credential", "no stored token", err)
		}
		return err
	}
	if token.ClientID == "" {
		token.ClientID = p.oauth.ClientID()
	}
	p.mu.Lock()
	if !p.loaded {
		p.token = token
		p.loaded = true
	}
	p.mu.Unlock()
	return nil
}

func (p *UserTokenProvider) persist(ctx context.Context, token Token) error {
	if p.store == nil || p.key == "" {
		return nil
	}
	return p.store.Save(ctx, p.key, token)
}

var (
	_ core.CredentialProvider = (*StaticProvider)(nil)
	_ core.CredentialProvider = (*AppTokenProvider)(nil)
	_ core.CredentialProvider = (*UserTokenProvider)(nil)
)
