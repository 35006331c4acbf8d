package core

import (
	"context"
	"net/url"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// TransportAdapter performs one HTTP exchange. Implementations must not retry.
type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                url.Values
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Credential is borrowed read-only by the engine for the duration of one call.
type Credential struct {
	AccessToken string
	ClientID    string
	Scopes      []string
	ExpiresAt   *time.Time
	UserID      string
	Login       string
}

func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

type Invalidation struct {
	AccessToken string
	StatusCode  int
	Reason      string
	Endpoint    string
}

// CredentialProvider implementations must be safe for concurrent use.
type CredentialProvider interface {
	Current(ctx context.Context) (Credential, error)
	Invalidate(ctx context.Context, reason Invalidation)
}

type RateLimitKey struct {
	ProviderID string
	ScopeType  string
	ScopeID    string
	BucketKey  string
}

type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RateLimit  RateLimitInfo
	Metadata   map[string]any
}

// RateLimitPolicy is advisory. BeforeCall may delay within ctx but must not
// reject a call on its own.
type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ResponseMeta) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
