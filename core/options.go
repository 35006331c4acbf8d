package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig   Config
	authRetries     *int
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	rateLimitPolicy RateLimitPolicy
	now             func() time.Time
}

type Option func(*clientBuilder)

func WithConfig(cfg Config) Option {
	return func(b *clientBuilder) {
		b.runtimeConfig = cfg
	}
}

// WithAuthRetries overrides auth_retries after config resolution, so zero is honoured.
func WithAuthRetries(retries int) Option {
	return func(b *clientBuilder) {
		b.authRetries = &retries
	}
}

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRateLimitPolicy(policy RateLimitPolicy) Option {
	return func(b *clientBuilder) {
		b.rateLimitPolicy = policy
	}
}

func WithNow(now func() time.Time) Option {
	return func(b *clientBuilder) {
		b.now = now
	}
}

func defaultClientBuilder() clientBuilder {
	loggerProvider, logger := glog.Resolve("twitch", nil, nil)
	return clientBuilder{
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// ResolveConfig layers defaults, loaded config and runtime overrides.
func ResolveConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = strings.TrimSpace(value)
		}
	}
	setDuration := func(target map[string]any, key string, value time.Duration) {
		if includeZero || value > 0 {
			target[key] = value
		}
	}
	setInt := func(target map[string]any, key string, value int) {
		if includeZero || value > 0 {
			target[key] = value
		}
	}
	setBool := func(target map[string]any, key string, value bool) {
		if includeZero || value {
			target[key] = value
		}
	}

	setString(layer, "service_name", cfg.ServiceName)
	setString(layer, "helix_base_url", cfg.HelixBaseURL)
	setString(layer, "tmi_base_url", cfg.TMIBaseURL)
	setString(layer, "oauth_base_url", cfg.OAuthBaseURL)
	setInt(layer, "auth_retries", cfg.AuthRetries)
	setDuration(layer, "request_timeout", cfg.RequestTimeout)
	if includeZero || cfg.MaxResponseBodyBytes > 0 {
		layer["max_response_body_bytes"] = cfg.MaxResponseBodyBytes
	}

	rateLimit := map[string]any{}
	setBool(rateLimit, "preemptive_wait", cfg.RateLimit.PreemptiveWait)
	setDuration(rateLimit, "max_wait", cfg.RateLimit.MaxWait)
	setInt(rateLimit, "requests_per_minute", cfg.RateLimit.RequestsPerMinute)
	if len(rateLimit) > 0 {
		layer["rate_limit"] = rateLimit
	}

	pubsub := map[string]any{}
	setString(pubsub, "url", cfg.PubSub.URL)
	setDuration(pubsub, "ping_interval", cfg.PubSub.PingInterval)
	setDuration(pubsub, "pong_timeout", cfg.PubSub.PongTimeout)
	setDuration(pubsub, "listen_timeout", cfg.PubSub.ListenTimeout)
	setBool(pubsub, "auto_reconnect", cfg.PubSub.AutoReconnect)
	setDuration(pubsub, "reconnect_initial", cfg.PubSub.ReconnectInitial)
	setDuration(pubsub, "reconnect_max", cfg.PubSub.ReconnectMax)
	if len(pubsub) > 0 {
		layer["pubsub"] = pubsub
	}
	return layer
}
