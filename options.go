package twitch

import (
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-twitch/auth"
	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/pubsub"
	"github.com/goliatone/go-twitch/ratelimit"
	"github.com/goliatone/go-twitch/transport"
)

type clientOptions struct {
	config            Config
	configProvider    core.ConfigProvider
	transport         core.TransportAdapter
	transportKind     string
	transportSettings map[string]any
	registry          *transport.Registry
	clientID          string
	clientSecret      string
	redirectURI       string
	appScopes         []string
	userToken         auth.Token
	tokenStore        auth.TokenStore
	tokenKey          string
	credentials       core.CredentialProvider
	rateLimitStore    ratelimit.StateStore
	enqueuer          core.JobEnqueuer
	logger            glog.Logger
	loggerProvider    glog.LoggerProvider
	engineOptions     []core.Option
	pubsubOptions     []pubsub.Option
	now               func() time.Time
}

type Option func(*clientOptions)

func defaultOptions() clientOptions {
	return clientOptions{
		transportKind: transport.KindREST,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithConfig sets runtime overrides layered over defaults and loaded config.
func WithConfig(cfg Config) Option {
	return func(o *clientOptions) {
		o.config = cfg
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *clientOptions) {
		o.configProvider = provider
	}
}

// WithTransport uses adapter as is and skips the registry.
func WithTransport(adapter core.TransportAdapter) Option {
	return func(o *clientOptions) {
		o.transport = adapter
	}
}

// WithTransportKind selects a registry backend such as "rest" or "fasthttp".
func WithTransportKind(kind string, settings map[string]any) Option {
	return func(o *clientOptions) {
		o.transportKind = strings.TrimSpace(kind)
		o.transportSettings = settings
	}
}

func WithTransportRegistry(registry *transport.Registry) Option {
	return func(o *clientOptions) {
		o.registry = registry
	}
}

func WithClientID(clientID string) Option {
	return func(o *clientOptions) {
		o.clientID = strings.TrimSpace(clientID)
	}
}

func WithClientSecret(secret string) Option {
	return func(o *clientOptions) {
		o.clientSecret = strings.TrimSpace(secret)
	}
}

func WithRedirectURI(uri string) Option {
	return func(o *clientOptions) {
		o.redirectURI = strings.TrimSpace(uri)
	}
}

func WithAppScopes(scopes ...string) Option {
	return func(o *clientOptions) {
		o.appScopes = append([]string(nil), scopes...)
	}
}

func WithUserToken(token auth.Token) Option {
	return func(o *clientOptions) {
		o.userToken = token
	}
}

// WithTokenStore loads and persists the user token under key.
func WithTokenStore(store auth.TokenStore, key string) Option {
	return func(o *clientOptions) {
		o.tokenStore = store
		o.tokenKey = strings.TrimSpace(key)
	}
}

func WithCredentialProvider(provider core.CredentialProvider) Option {
	return func(o *clientOptions) {
		o.credentials = provider
	}
}

// WithRateLimitStore records Ratelimit-* state in store instead of memory.
func WithRateLimitStore(store ratelimit.StateStore) Option {
	return func(o *clientOptions) {
		o.rateLimitStore = store
	}
}

func WithJobEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(o *clientOptions) {
		o.enqueuer = enqueuer
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *clientOptions) {
		o.loggerProvider = provider
	}
}

// WithEngineOptions appends options applied after the ones New derives.
func WithEngineOptions(opts ...core.Option) Option {
	return func(o *clientOptions) {
		o.engineOptions = append(o.engineOptions, opts...)
	}
}

func WithPubSubOptions(opts ...pubsub.Option) Option {
	return func(o *clientOptions) {
		o.pubsubOptions = append(o.pubsubOptions, opts...)
	}
}

func WithNow(now func() time.Time) Option {
	return func(o *clientOptions) {
		if now != nil {
			o.now = now
		}
	}
}
