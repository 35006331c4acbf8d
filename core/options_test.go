package core

import (
	"context"
	"testing"
	"time"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewClient_DefaultDependencies(t *testing.T) {
	client, err := NewClient(&stubTransport{}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.logger == nil {
		t.Fatalf("expected default logger")
	}
	if client.LoggerProvider() == nil {
		t.Fatalf("expected default logger provider")
	}
	if client.metrics == nil {
		t.Fatalf("expected default metrics recorder")
	}
	cfg := client.Config()
	if cfg.ServiceName != "twitch" || cfg.AuthRetries != 1 {
		t.Fatalf("unexpected default config: %+v", cfg)
	}
	if cfg.HelixBaseURL != DefaultHelixBaseURL || cfg.PubSub.PingInterval != 4*time.Minute {
		t.Fatalf("unexpected default endpoints: %+v", cfg)
	}
}

func TestNewClient_RequiresTransport(t *testing.T) {
	if _, err := NewClient(nil, nil); err == nil {
		t.Fatalf("expected error without transport")
	}
}

func TestNewClient_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	resolved := DefaultConfig()
	resolved.ServiceName = "resolved"
	optionsResolver := &fixedOptionsResolver{cfg: resolved}

	client, err := NewClient(&stubTransport{}, nil,
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithConfigProvider(&fixedConfigProvider{cfg: DefaultConfig()}),
		WithOptionsResolver(optionsResolver),
		WithAuthRetries(0),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if got := client.LoggerProvider().GetLogger("twitch.override"); got != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if got := client.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if got := client.Config().AuthRetries; got != 0 {
		t.Fatalf("expected auth retries override of zero, got %d", got)
	}
}

func TestNewClient_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"auth_retries": 3,
		"pubsub": map[string]any{
			"url": "wss://pubsub.example.test",
		},
	}})

	client, err := NewClient(&stubTransport{}, nil,
		WithConfig(Config{ServiceName: "from-runtime"}),
		WithConfigProvider(provider),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	cfg := client.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.AuthRetries != 3 {
		t.Fatalf("expected config layer auth_retries, got %d", cfg.AuthRetries)
	}
	if cfg.PubSub.URL != "wss://pubsub.example.test" {
		t.Fatalf("expected config layer pubsub url, got %q", cfg.PubSub.URL)
	}
	if cfg.TMIBaseURL != DefaultTMIBaseURL {
		t.Fatalf("expected default tmi base url, got %q", cfg.TMIBaseURL)
	}
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(&stubTransport{}, nil, WithAuthRetries(maxAuthRetries+1))
	if err == nil {
		t.Fatalf("expected auth retries validation error")
	}
	_, err = NewClient(&stubTransport{}, nil, WithConfig(Config{HelixBaseURL: "not a url"}))
	if err == nil {
		t.Fatalf("expected base url validation error")
	}
}
