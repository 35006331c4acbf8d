package twitch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-twitch/adapters/gocommand"
	"github.com/goliatone/go-twitch/adapters/gojob"
	"github.com/goliatone/go-twitch/adapters/gologger"
	"github.com/goliatone/go-twitch/auth"
	"github.com/goliatone/go-twitch/command"
	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/helix"
	"github.com/goliatone/go-twitch/pubsub"
	"github.com/goliatone/go-twitch/query"
	"github.com/goliatone/go-twitch/ratelimit"
	"github.com/goliatone/go-twitch/tmi"
	"github.com/goliatone/go-twitch/transport"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Client bundles the Helix, TMI and PubSub clients around one engine and one
// credential provider.
type Client struct {
	config      Config
	transport   core.TransportAdapter
	oauth       *auth.OAuthClient
	credentials core.CredentialProvider
	user        *auth.UserTokenProvider
	tokenKey    string
	engine      *core.Client
	helix       *helix.Client
	tmi         *tmi.Client
	pubsub      *pubsub.Client
	enqueuer    core.JobEnqueuer
	jobHook     core.JobWorkerHook
	loggers     gologger.Loggers
	now         func() time.Time
}

// New resolves configuration, builds the transport by kind and wires the
// credential provider. Credentials are chosen in this order: an explicit
// provider, a user token (initial or stored), an app token when a client
// secret is set. Without any of them only unauthenticated calls succeed.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	cfg, err := core.ResolveConfig(ctx, options.config, options.configProvider, nil)
	if err != nil {
		return nil, err
	}
	loggers := gologger.ResolveLoggers(options.loggerProvider, options.logger)

	adapter := options.transport
	if adapter == nil {
		registry := options.registry
		if registry == nil {
			registry = transport.NewDefaultRegistry()
		}
		settings := map[string]any{
			"timeout":                 cfg.RequestTimeout,
			"max_response_body_bytes": cfg.MaxResponseBodyBytes,
		}
		for key, value := range options.transportSettings {
			settings[key] = value
		}
		adapter, err = registry.Build(options.transportKind, settings)
		if err != nil {
			return nil, err
		}
	}

	client := &Client{
		config:    cfg,
		transport: adapter,
		tokenKey:  options.tokenKey,
		enqueuer:  options.enqueuer,
		jobHook:   gojob.NewLoggingHook(loggers.JobEvents),
		loggers:   loggers,
		now:       options.now,
	}

	if options.clientID != "" {
		client.oauth, err = auth.NewOAuthClient(adapter, auth.OAuthConfig{
			BaseURL:      cfg.OAuthBaseURL,
			ClientID:     options.clientID,
			ClientSecret: options.clientSecret,
			RedirectURI:  options.redirectURI,
			Now:          options.now,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := client.resolveCredentials(options); err != nil {
		return nil, err
	}

	engineOpts := []core.Option{
		core.WithConfig(cfg),
		core.WithLoggerProvider(loggers.Provider),
		core.WithLogger(loggers.Engine),
		core.WithNow(options.now),
	}
	if policy := rateLimitPolicy(cfg, options); policy != nil {
		engineOpts = append(engineOpts, core.WithRateLimitPolicy(policy))
	}
	engineOpts = append(engineOpts, options.engineOptions...)
	client.engine, err = core.NewClient(adapter, client.credentials, engineOpts...)
	if err != nil {
		return nil, err
	}
	if client.helix, err = helix.NewClient(client.engine); err != nil {
		return nil, err
	}
	if client.tmi, err = tmi.NewClient(client.engine); err != nil {
		return nil, err
	}

	pubsubOpts := append([]pubsub.Option{
		pubsub.WithLogger(loggers.PubSub),
	}, options.pubsubOptions...)
	client.pubsub, err = pubsub.NewClient(pubsub.ConfigFromCore(cfg.PubSub), pubsubOpts...)
	if err != nil {
		return nil, err
	}

	loggers.Engine.Info("twitch client ready",
		"transport", adapter.Kind(),
		"credentials", credentialKind(client.credentials),
	)
	return client, nil
}

func (c *Client) resolveCredentials(options clientOptions) error {
	if options.credentials != nil {
		c.credentials = options.credentials
		return nil
	}
	hasUserToken := strings.TrimSpace(options.userToken.AccessToken) != ""
	hasStore := options.tokenStore != nil && options.tokenKey != ""
	if hasUserToken || hasStore {
		if c.oauth == nil {
			return fmt.Errorf("twitch: client id is required for user tokens")
		}
		userOpts := []auth.UserTokenOption{auth.WithUserNow(options.now)}
		if hasStore {
			userOpts = append(userOpts, auth.WithTokenStore(options.tokenStore, options.tokenKey))
		}
		user, err := auth.NewUserTokenProvider(c.oauth, options.userToken, userOpts...)
		if err != nil {
			return err
		}
		c.user = user
		c.credentials = user
		return nil
	}
	if c.oauth != nil && options.clientSecret != "" {
		app, err := auth.NewAppTokenProvider(c.oauth,
			auth.WithAppScopes(options.appScopes...),
			auth.WithAppNow(options.now),
		)
		if err != nil {
			return err
		}
		c.credentials = app
	}
	return nil
}

func rateLimitPolicy(cfg Config, options clientOptions) core.RateLimitPolicy {
	if options.rateLimitStore == nil && cfg.RateLimit.RequestsPerMinute <= 0 {
		return nil
	}
	header := ratelimit.NewHeaderPolicy(options.rateLimitStore)
	header.PreemptiveWait = cfg.RateLimit.PreemptiveWait
	header.MaxWait = cfg.RateLimit.MaxWait
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		return header
	}
	return ratelimit.Chain(header, ratelimit.NewPacingPolicy(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.MaxWait))
}

func credentialKind(provider core.CredentialProvider) string {
	switch provider.(type) {
	case nil:
		return "none"
	case *auth.UserTokenProvider:
		return "user"
	case *auth.AppTokenProvider:
		return "app"
	default:
		return "custom"
	}
}

func (c *Client) Config() Config                       { return c.config }
func (c *Client) Engine() *core.Client                 { return c.engine }
func (c *Client) Helix() *helix.Client                 { return c.helix }
func (c *Client) TMI() *tmi.Client                     { return c.tmi }
func (c *Client) PubSub() *pubsub.Client               { return c.pubsub }
func (c *Client) OAuth() *auth.OAuthClient             { return c.oauth }
func (c *Client) Credentials() core.CredentialProvider { return c.credentials }

// Close drops the PubSub connection. HTTP clients hold no resources.
func (c *Client) Close() error {
	if c == nil || c.pubsub == nil {
		return nil
	}
	return c.pubsub.Close()
}

// RefreshCredential forces a refresh grant on the user token.
func (c *Client) RefreshCredential(ctx context.Context) (command.RefreshResult, error) {
	if c.user == nil {
		return command.RefreshResult{}, core.NewError(core.KindInvalidRequest, "refresh credential", "no user token configured")
	}
	token, err := c.user.Refresh(ctx)
	if err != nil {
		return command.RefreshResult{}, err
	}
	c.loggers.Auth.Info("user token refreshed", "user_id", token.UserID, "expires_at", token.ExpiresAt)
	return command.RefreshResult{
		UserID:    token.UserID,
		Login:     token.Login,
		Scopes:    append([]string(nil), token.Scopes...),
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// RevokeCredential revokes accessToken, or the current credential when empty,
// and invalidates it locally.
func (c *Client) RevokeCredential(ctx context.Context, accessToken string, reason string) error {
	if c.oauth == nil {
		return core.NewError(core.KindInvalidRequest, "revoke credential", "client id is not configured")
	}
	token, err := c.tokenOrCurrent(ctx, "revoke credential", accessToken)
	if err != nil {
		return err
	}
	if err := c.oauth.Revoke(ctx, token); err != nil {
		return err
	}
	if c.credentials != nil {
		c.credentials.Invalidate(ctx, core.Invalidation{AccessToken: token, Reason: firstNonEmpty(reason, "revoked")})
	}
	c.loggers.Auth.Info("credential revoked", "fingerprint", core.TokenFingerprint(token), "reason", reason)
	return nil
}

// ValidateCredential calls the OAuth validate endpoint for accessToken, or
// the current credential when empty.
func (c *Client) ValidateCredential(ctx context.Context, accessToken string) (auth.Validation, error) {
	if c.oauth == nil {
		return auth.Validation{}, core.NewError(core.KindInvalidRequest, "validate credential", "client id is not configured")
	}
	token, err := c.tokenOrCurrent(ctx, "validate credential", accessToken)
	if err != nil {
		return auth.Validation{}, err
	}
	return c.oauth.Validate(ctx, token)
}

func (c *Client) SubscribeTopic(ctx context.Context, topic string, authToken string, handler pubsub.Handler) error {
	return c.pubsub.Subscribe(ctx, topic, authToken, handler)
}

func (c *Client) UnsubscribeTopic(ctx context.Context, topic string) error {
	return c.pubsub.Unsubscribe(ctx, topic)
}

func (c *Client) GetChatters(ctx context.Context, channel string) (tmi.ChattersResponse, error) {
	return c.tmi.GetChatters(ctx, channel)
}

func (c *Client) Moderators(req helix.GetModeratorsRequest) *core.Walker[helix.Moderator] {
	return c.helix.Moderators(req)
}

// RegisterHandlers registers every command and query backed by this client.
func (c *Client) RegisterHandlers(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	handlers := gocommand.Handlers{
		Topics:     c,
		Chatters:   c,
		Moderators: c,
	}
	if c.oauth != nil {
		handlers.Credentials = c
		handlers.Validator = c
	}
	return gocommand.RegisterHandlers(adapter, handlers)
}

// ScheduleTokenValidation enqueues a validate job for the stored user token.
// Twitch expects user tokens to be validated hourly.
func (c *Client) ScheduleTokenValidation(ctx context.Context) error {
	if c.enqueuer == nil {
		return core.NewError(core.KindInvalidRequest, "schedule token validation", "job enqueuer is not configured")
	}
	if c.tokenKey == "" {
		return core.NewError(core.KindInvalidRequest, "schedule token validation", "token key is not configured")
	}
	msg, err := gojob.NewTokenJobMessage(gojob.JobIDValidateToken, c.tokenKey, c.now())
	if err != nil {
		return err
	}
	return c.enqueuer.Enqueue(ctx, msg)
}

// HandleJob runs a token job. A validate job whose token was rejected
// invalidates it and enqueues a refresh job when an enqueuer is configured.
func (c *Client) HandleJob(ctx context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return core.NewError(core.KindInvalidRequest, "handle job", "job message is required")
	}
	key, ok := gojob.TokenKey(msg)
	if !ok || key != c.tokenKey {
		return core.NewError(core.KindInvalidRequest, "handle job", fmt.Sprintf("job is not for token %q", c.tokenKey))
	}
	switch msg.JobID {
	case gojob.JobIDValidateToken:
		validation, err := c.ValidateCredential(ctx, "")
		if err == nil {
			c.loggers.Auth.Debug("user token validated", "user_id", validation.UserID, "expires_in", validation.ExpiresIn)
			return nil
		}
		if core.KindOf(err) != core.KindAuthenticationRejected {
			return err
		}
		c.loggers.Auth.Warn("user token failed validation", "error", err)
		if c.credentials != nil {
			c.credentials.Invalidate(ctx, core.Invalidation{StatusCode: 401, Reason: "validation failed"})
		}
		if c.enqueuer == nil {
			return nil
		}
		refresh, buildErr := gojob.NewTokenJobMessage(gojob.JobIDRefreshToken, key, c.now())
		if buildErr != nil {
			return buildErr
		}
		return c.enqueuer.Enqueue(ctx, refresh)
	case gojob.JobIDRefreshToken:
		_, err := c.RefreshCredential(ctx)
		return err
	default:
		return core.NewError(core.KindInvalidRequest, "handle job", fmt.Sprintf("unsupported job %q", msg.JobID))
	}
}

// ProcessTokenJob takes one job from dequeuer and runs it through HandleJob.
// attempt is the delivery count the queue reports for it.
func (c *Client) ProcessTokenJob(ctx context.Context, dequeuer core.JobDequeuer, attempt int) error {
	return gojob.ProcessNext(ctx, dequeuer, attempt, c.HandleJob, c.jobHook)
}

// JobWorkerHook reports token jobs run by a go-job worker to the jobs logger.
func (c *Client) JobWorkerHook() *gojob.WorkerHookAdapter {
	return gojob.NewWorkerHookAdapter(c.jobHook)
}

func (c *Client) tokenOrCurrent(ctx context.Context, op string, token string) (string, error) {
	if token = strings.TrimSpace(token); token != "" {
		return token, nil
	}
	if c.credentials == nil {
		return "", core.NewError(core.KindInvalidRequest, op, "access token is required")
	}
	cred, err := c.credentials.Current(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var (
	_ command.CredentialService = (*Client)(nil)
	_ command.TopicService      = (*Client)(nil)
	_ query.CredentialValidator = (*Client)(nil)
	_ query.ChattersReader      = (*Client)(nil)
	_ query.ModeratorLister     = (*Client)(nil)
)
