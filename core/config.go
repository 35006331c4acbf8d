package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultHelixBaseURL  = "https://api.twitch.tv/helix"
	DefaultTMIBaseURL    = "https://tmi.twitch.tv"
	DefaultOAuthBaseURL  = "https://id.twitch.tv/oauth2"
	DefaultPubSubURL     = "wss://pubsub-edge.twitch.tv"
	defaultAuthRetries   = 1
	maxAuthRetries       = 5
	defaultRequestBudget = 30 * time.Second
)

type RateLimitConfig struct {
	PreemptiveWait    bool          `koanf:"preemptive_wait" mapstructure:"preemptive_wait"`
	MaxWait           time.Duration `koanf:"max_wait" mapstructure:"max_wait"`
	RequestsPerMinute int           `koanf:"requests_per_minute" mapstructure:"requests_per_minute"`
}

type PubSubConfig struct {
	URL              string        `koanf:"url" mapstructure:"url"`
	PingInterval     time.Duration `koanf:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout      time.Duration `koanf:"pong_timeout" mapstructure:"pong_timeout"`
	ListenTimeout    time.Duration `koanf:"listen_timeout" mapstructure:"listen_timeout"`
	AutoReconnect    bool          `koanf:"auto_reconnect" mapstructure:"auto_reconnect"`
	ReconnectInitial time.Duration `koanf:"reconnect_initial" mapstructure:"reconnect_initial"`
	ReconnectMax     time.Duration `koanf:"reconnect_max" mapstructure:"reconnect_max"`
}

type Config struct {
	ServiceName          string          `koanf:"service_name" mapstructure:"service_name"`
	HelixBaseURL         string          `koanf:"helix_base_url" mapstructure:"helix_base_url"`
	TMIBaseURL           string          `koanf:"tmi_base_url" mapstructure:"tmi_base_url"`
	OAuthBaseURL         string          `koanf:"oauth_base_url" mapstructure:"oauth_base_url"`
	AuthRetries          int             `koanf:"auth_retries" mapstructure:"auth_retries"`
	RequestTimeout       time.Duration   `koanf:"request_timeout" mapstructure:"request_timeout"`
	MaxResponseBodyBytes int64           `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
	RateLimit            RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
	PubSub               PubSubConfig    `koanf:"pubsub" mapstructure:"pubsub"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:          "twitch",
		HelixBaseURL:         DefaultHelixBaseURL,
		TMIBaseURL:           DefaultTMIBaseURL,
		OAuthBaseURL:         DefaultOAuthBaseURL,
		AuthRetries:          defaultAuthRetries,
		RequestTimeout:       defaultRequestBudget,
		MaxResponseBodyBytes: 10 << 20,
		RateLimit: RateLimitConfig{
			MaxWait:           5 * time.Second,
			RequestsPerMinute: 800,
		},
		PubSub: PubSubConfig{
			URL:              DefaultPubSubURL,
			PingInterval:     4 * time.Minute,
			PongTimeout:      10 * time.Second,
			ListenTimeout:    10 * time.Second,
			AutoReconnect:    true,
			ReconnectInitial: time.Second,
			ReconnectMax:     2 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	for name, raw := range map[string]string{
		"helix_base_url": c.HelixBaseURL,
		"tmi_base_url":   c.TMIBaseURL,
		"oauth_base_url": c.OAuthBaseURL,
	} {
		if err := validateBaseURL(name, raw); err != nil {
			return err
		}
	}
	if c.AuthRetries < 0 || c.AuthRetries > maxAuthRetries {
		return fmt.Errorf("core: auth_retries must be between 0 and %d", maxAuthRetries)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("core: request_timeout must be >= 0")
	}
	if c.MaxResponseBodyBytes < 0 {
		return fmt.Errorf("core: max_response_body_bytes must be >= 0")
	}
	if c.RateLimit.MaxWait < 0 {
		return fmt.Errorf("core: rate_limit.max_wait must be >= 0")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("core: rate_limit.requests_per_minute must be >= 0")
	}
	if c.PubSub.PingInterval < 0 || c.PubSub.PongTimeout < 0 || c.PubSub.ListenTimeout < 0 {
		return fmt.Errorf("core: pubsub intervals must be >= 0")
	}
	if c.PubSub.ReconnectMax > 0 && c.PubSub.ReconnectInitial > c.PubSub.ReconnectMax {
		return fmt.Errorf("core: pubsub.reconnect_initial must not exceed pubsub.reconnect_max")
	}
	return nil
}

// BaseURL returns the configured base for api without a trailing slash.
func (c Config) BaseURL(api API) string {
	switch api {
	case APITMI:
		return strings.TrimRight(c.TMIBaseURL, "/")
	default:
		return strings.TrimRight(c.HelixBaseURL, "/")
	}
}

func validateBaseURL(name string, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("core: %s is required", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: %s must be an absolute url", name)
	}
	return nil
}
