package twitch_test

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	twitch "github.com/goliatone/go-twitch"
	"github.com/goliatone/go-twitch/adapters/gocommand"
	"github.com/goliatone/go-twitch/adapters/gojob"
	"github.com/goliatone/go-twitch/auth"
	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/devkit"
	"github.com/goliatone/go-twitch/helix"
	"github.com/goliatone/go-twitch/query"
	"github.com/goliatone/go-twitch/ratelimit"
	"github.com/goliatone/go-twitch/tmi"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newUserClient(t *testing.T, transport core.TransportAdapter, opts ...twitch.Option) *twitch.Client {
	t.Helper()
	base := []twitch.Option{
		twitch.WithTransport(transport),
		twitch.WithClientID("client-1"),
		twitch.WithUserToken(auth.Token{
			AccessToken:  "user-token",
			RefreshToken: "refresh-1",
			Scopes:       []string{helix.ScopeModerationRead},
			UserID:       "42",
		}),
		twitch.WithNow(func() time.Time { return fixedNow }),
	}
	client, err := twitch.New(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type recordingEnqueuer struct {
	messages []*core.JobExecutionMessage
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	e.messages = append(e.messages, msg)
	return nil
}

func TestNew_UserTokenAuthenticatesHelix(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{
		"data": [{"user_id": "7", "user_login": "mod", "user_name": "Mod"}],
		"pagination": {}
	}`), nil))
	client := newUserClient(t, transport)

	res, err := client.Helix().GetModerators(context.Background(), helix.GetModeratorsRequest{BroadcasterID: "42"})
	if err != nil {
		t.Fatalf("get moderators: %v", err)
	}
	if len(res.Data) != 1 || res.Data[0].UserID != "7" {
		t.Fatalf("unexpected moderators: %+v", res.Data)
	}
	req := transport.Requests()[0]
	if req.Headers["Authorization"] != "Bearer user-token" || req.Headers["Client-Id"] != "client-1" {
		t.Fatalf("unexpected auth headers: %v", req.Headers)
	}
}

func TestNew_MissingScopeFailsWithoutIO(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest")
	client, err := twitch.New(context.Background(),
		twitch.WithTransport(transport),
		twitch.WithClientID("client-1"),
		twitch.WithUserToken(auth.Token{AccessToken: "user-token"}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Helix().GetModerators(context.Background(), helix.GetModeratorsRequest{BroadcasterID: "42"})
	if !errors.Is(err, core.KindInsufficientScope) {
		t.Fatalf("expected insufficient scope, got %v", err)
	}
	if transport.CallCount() != 0 {
		t.Fatalf("expected no transport calls, got %d", transport.CallCount())
	}
}

func TestNew_BuildsTransportByKind(t *testing.T) {
	client, err := twitch.New(context.Background(), twitch.WithTransportKind("disabled", map[string]any{"reason": "offline"}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.GetChatters(context.Background(), "streamer")
	if !errors.Is(err, core.KindTransportFailure) {
		t.Fatalf("expected transport failure from disabled backend, got %v", err)
	}

	if _, err := twitch.New(context.Background(), twitch.WithTransportKind("carrier-pigeon", nil)); err == nil {
		t.Fatalf("expected unknown transport kind to fail")
	}
}

func TestNew_UserTokenRequiresClientID(t *testing.T) {
	_, err := twitch.New(context.Background(),
		twitch.WithTransport(devkit.NewFakeTransportAdapter("rest")),
		twitch.WithUserToken(auth.Token{AccessToken: "user-token"}),
	)
	if err == nil {
		t.Fatalf("expected missing client id error")
	}
}

func TestNew_RecordsRateLimitState(t *testing.T) {
	store := ratelimit.NewMemoryStateStore()
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{"data":[],"pagination":{}}`), map[string]string{
		"Ratelimit-Limit":     "800",
		"Ratelimit-Remaining": "799",
		"Ratelimit-Reset":     "1700000000",
	}))
	client := newUserClient(t, transport, twitch.WithRateLimitStore(store))

	if _, err := client.Helix().GetModerators(context.Background(), helix.GetModeratorsRequest{BroadcasterID: "42"}); err != nil {
		t.Fatalf("get moderators: %v", err)
	}
	state, err := store.Get(context.Background(), core.RateLimitKey{
		ProviderID: "twitch",
		ScopeType:  string(core.APIHelix),
		ScopeID:    "client-1",
		BucketKey:  core.TokenFingerprint("user-token"),
	})
	if err != nil {
		t.Fatalf("load rate limit state: %v", err)
	}
	if state.Remaining != 799 || state.Reset != "1700000000" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestRefreshCredential(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{
		"access_token": "user-token-2",
		"refresh_token": "refresh-2",
		"expires_in": 14400,
		"scope": ["moderation:read"],
		"token_type": "bearer"
	}`), nil))
	client := newUserClient(t, transport)

	result, err := client.RefreshCredential(context.Background())
	if err != nil {
		t.Fatalf("refresh credential: %v", err)
	}
	if result.UserID != "42" || !result.ExpiresAt.Equal(fixedNow.Add(4*time.Hour)) {
		t.Fatalf("unexpected refresh result: %+v", result)
	}
	cred, err := client.Credentials().Current(context.Background())
	if err != nil {
		t.Fatalf("current credential: %v", err)
	}
	if cred.AccessToken != "user-token-2" {
		t.Fatalf("expected refreshed token, got %q", cred.AccessToken)
	}

	appOnly, err := twitch.New(context.Background(), twitch.WithTransport(transport))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := appOnly.RefreshCredential(context.Background()); !errors.Is(err, core.KindInvalidRequest) {
		t.Fatalf("expected invalid request without a user token, got %v", err)
	}
}

func TestRevokeCredentialInvalidatesCurrent(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, nil, nil))
	credentials := devkit.NewFakeCredentialProvider(core.Credential{AccessToken: "tok-1", ClientID: "client-1"})
	client, err := twitch.New(context.Background(),
		twitch.WithTransport(transport),
		twitch.WithClientID("client-1"),
		twitch.WithCredentialProvider(credentials),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.RevokeCredential(context.Background(), "", "logout"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	form, err := url.ParseQuery(string(transport.Requests()[0].Body))
	if err != nil {
		t.Fatalf("parse revoke form: %v", err)
	}
	if form.Get("token") != "tok-1" || form.Get("client_id") != "client-1" {
		t.Fatalf("unexpected revoke form: %v", form)
	}
	invalidations := credentials.Invalidations()
	if len(invalidations) != 1 || invalidations[0].AccessToken != "tok-1" || invalidations[0].Reason != "logout" {
		t.Fatalf("unexpected invalidations: %+v", invalidations)
	}
}

func TestScheduleAndHandleTokenValidation(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{
		"client_id": "client-1",
		"login": "streamer",
		"user_id": "42",
		"scopes": ["moderation:read"],
		"expires_in": 3600
	}`), nil))
	enqueuer := &recordingEnqueuer{}
	store := auth.NewMemoryTokenStore()
	client := newUserClient(t, transport,
		twitch.WithTokenStore(store, "user:42"),
		twitch.WithJobEnqueuer(enqueuer),
	)

	if err := client.ScheduleTokenValidation(context.Background()); err != nil {
		t.Fatalf("schedule validation: %v", err)
	}
	if len(enqueuer.messages) != 1 || enqueuer.messages[0].JobID != gojob.JobIDValidateToken {
		t.Fatalf("expected a validate job, got %+v", enqueuer.messages)
	}
	if err := client.HandleJob(context.Background(), enqueuer.messages[0]); err != nil {
		t.Fatalf("handle validate job: %v", err)
	}
	if got := transport.Requests()[0].Headers["Authorization"]; got != "OAuth user-token" {
		t.Fatalf("expected validate to use the current token, got %q", got)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected no follow-up job for a valid token")
	}
}

func TestHandleJobQueuesRefreshForRejectedToken(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(401, []byte(`{"status":401,"message":"invalid access token"}`), nil))
	enqueuer := &recordingEnqueuer{}
	client := newUserClient(t, transport,
		twitch.WithTokenStore(auth.NewMemoryTokenStore(), "user:42"),
		twitch.WithJobEnqueuer(enqueuer),
	)

	msg, err := gojob.NewTokenJobMessage(gojob.JobIDValidateToken, "user:42", fixedNow)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := client.HandleJob(context.Background(), msg); err != nil {
		t.Fatalf("handle validate job: %v", err)
	}
	if len(enqueuer.messages) != 1 || enqueuer.messages[0].JobID != gojob.JobIDRefreshToken {
		t.Fatalf("expected a refresh job, got %+v", enqueuer.messages)
	}

	other, err := gojob.NewTokenJobMessage(gojob.JobIDValidateToken, "user:7", fixedNow)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := client.HandleJob(context.Background(), other); !errors.Is(err, core.KindInvalidRequest) {
		t.Fatalf("expected job for another token to be refused, got %v", err)
	}
}

func TestProcessTokenJobRunsThroughHandleJob(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{
		"client_id": "client-1",
		"login": "streamer",
		"user_id": "42",
		"scopes": ["moderation:read"],
		"expires_in": 3600
	}`), nil))
	logger := &messageLog{}
	client := newUserClient(t, transport,
		twitch.WithTokenStore(auth.NewMemoryTokenStore(), "user:42"),
		twitch.WithLogger(logger),
	)

	msg, err := gojob.NewTokenJobMessage(gojob.JobIDValidateToken, "user:42", fixedNow)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	delivery := &queuedJob{msg: msg}
	if err := client.ProcessTokenJob(context.Background(), singleJob{delivery}, 1); err != nil {
		t.Fatalf("process token job: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected validated job to be acked")
	}
	if len(transport.Requests()) != 1 {
		t.Fatalf("expected one validate request, got %d", len(transport.Requests()))
	}
	if !logger.has("token job completed") {
		t.Fatalf("expected job outcome logged, got %v", logger.messages())
	}

	var hook worker.Hook = client.JobWorkerHook()
	hook.OnFailure(context.Background(), worker.Event{
		Message: &job.ExecutionMessage{JobID: gojob.JobIDRefreshToken},
		Attempt: 5,
		Err:     errors.New("refresh rejected"),
	})
	if !logger.has("token job dead lettered") {
		t.Fatalf("expected worker failure logged, got %v", logger.messages())
	}
}

func TestRegisterHandlersServesQueries(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{
		"chatter_count": 2,
		"chatters": {"broadcaster": ["streamer"], "viewers": ["fan"]}
	}`), nil))
	client := newUserClient(t, transport)

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := client.RegisterHandlers(adapter)
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	chatters, err := gocommand.Query[query.GetChattersMessage, tmi.ChattersResponse](context.Background(), query.GetChattersMessage{Channel: "#Streamer"})
	if err != nil {
		t.Fatalf("query chatters: %v", err)
	}
	if chatters.ChatterCount != 2 || len(chatters.Chatters.All()) != 2 {
		t.Fatalf("unexpected chatters: %+v", chatters)
	}
	if got := transport.Requests()[0].URL; got != core.DefaultTMIBaseURL+"/group/user/streamer/chatters" {
		t.Fatalf("unexpected chatters url %q", got)
	}
}

type singleJob struct {
	delivery *queuedJob
}

func (s singleJob) Dequeue(context.Context) (core.JobDelivery, error) {
	return s.delivery, nil
}

type queuedJob struct {
	msg   *core.JobExecutionMessage
	acked bool
	nack  *core.JobNackOptions
}

func (j *queuedJob) Message() *core.JobExecutionMessage { return j.msg }

func (j *queuedJob) Ack(context.Context) error {
	j.acked = true
	return nil
}

func (j *queuedJob) Nack(_ context.Context, opts core.JobNackOptions) error {
	j.nack = &opts
	return nil
}

type messageLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *messageLog) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

func (l *messageLog) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.lines)
}

func (l *messageLog) has(msg string) bool {
	return slices.Contains(l.messages(), msg)
}

func (l *messageLog) Trace(msg string, _ ...any)               { l.add(msg) }
func (l *messageLog) Debug(msg string, _ ...any)               { l.add(msg) }
func (l *messageLog) Info(msg string, _ ...any)                { l.add(msg) }
func (l *messageLog) Warn(msg string, _ ...any)                { l.add(msg) }
func (l *messageLog) Error(msg string, _ ...any)               { l.add(msg) }
func (l *messageLog) Fatal(msg string, _ ...any)               { l.add(msg) }
func (l *messageLog) WithContext(context.Context) glog.Logger { return l }
