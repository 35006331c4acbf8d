package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const rateLimitProviderID = "twitch"

// Client is the execution engine shared by every typed API client.
type Client struct {
	config         Config
	transport      TransportAdapter
	credentials    CredentialProvider
	logger         Logger
	loggerProvider LoggerProvider
	metrics        MetricsRecorder
	rateLimit      RateLimitPolicy
	now            func() time.Time
}

// NewClient builds an engine. credentials may be nil when every request the
// client executes is unauthenticated.
func NewClient(transport TransportAdapter, credentials CredentialProvider, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("core: transport adapter is required")
	}
	builder := defaultClientBuilder()
	for _, opt := range opts {
		if opt != nil {
			opt(&builder)
		}
	}

	cfg, err := ResolveConfig(context.Background(), builder.runtimeConfig, builder.configProvider, builder.optionsResolver)
	if err != nil {
		return nil, err
	}
	if builder.authRetries != nil {
		cfg.AuthRetries = *builder.authRetries
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	loggerProvider, logger := glog.Resolve(cfg.ServiceName, builder.loggerProvider, builder.logger)
	metrics := builder.metricsRecorder
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	now := builder.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Client{
		config:         cfg,
		transport:      transport,
		credentials:    credentials,
		logger:         glog.Ensure(logger),
		loggerProvider: loggerProvider,
		metrics:        metrics,
		rateLimit:      builder.rateLimitPolicy,
		now:            now,
	}, nil
}

func (c *Client) Config() Config {
	if c == nil {
		return DefaultConfig()
	}
	return c.config
}

func (c *Client) Transport() TransportAdapter {
	if c == nil {
		return nil
	}
	return c.transport
}

func (c *Client) Credentials() CredentialProvider {
	if c == nil {
		return nil
	}
	return c.credentials
}

func (c *Client) LoggerProvider() LoggerProvider {
	if c == nil {
		return nil
	}
	return c.loggerProvider
}

func (c *Client) credential(ctx context.Context, op string) (Credential, error) {
	if c.credentials == nil {
		return Credential{}, NewError(KindAuthenticationRejected, op, "credential provider is not configured")
	}
	cred, err := c.credentials.Current(ctx)
	if err != nil {
		if KindOf(err) == KindAuthenticationRejected {
			return Credential{}, err
		}
		return Credential{}, WrapError(KindAuthenticationRejected, op, "credential unavailable", err)
	}
	if strings.TrimSpace(cred.AccessToken) == "" {
		return Credential{}, NewError(KindAuthenticationRejected, op, "credential has no access token")
	}
	return cred, nil
}

func (c *Client) rateLimitKey(endpoint Endpoint, cred Credential) RateLimitKey {
	return RateLimitKey{
		ProviderID: rateLimitProviderID,
		ScopeType:  string(endpoint.API),
		ScopeID:    strings.TrimSpace(cred.ClientID),
		BucketKey:  TokenFingerprint(cred.AccessToken),
	}
}

// TokenFingerprint returns a short stable identifier for a token so it can be
// used as a key without storing the secret.
func TokenFingerprint(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

func authHeaders(headers map[string]string, cred Credential) {
	headers["Authorization"] = "Bearer " + strings.TrimSpace(cred.AccessToken)
	if clientID := strings.TrimSpace(cred.ClientID); clientID != "" {
		headers["Client-Id"] = clientID
	}
}
