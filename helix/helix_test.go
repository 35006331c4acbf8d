package helix_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-twitch/core"
	"github.com/goliatone/go-twitch/devkit"
	"github.com/goliatone/go-twitch/helix"
)

func newHelixClient(t *testing.T, transport core.TransportAdapter, scopes ...string) *helix.Client {
	t.Helper()
	engine, err := core.NewClient(transport, devkit.NewFakeCredentialProvider(core.Credential{
		AccessToken: "user-token",
		ClientID:    "client-1",
		Scopes:      scopes,
	}))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	client, err := helix.NewClient(engine)
	if err != nil {
		t.Fatalf("new helix client: %v", err)
	}
	return client
}

func TestGetModerators(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{
		"data": [
			{"user_id": "424596340", "user_name": "quotrok"},
			{"user_id": "424596341", "user_name": "glowillig"}
		],
		"pagination": {"cursor": "eyJiIjpudWxsfQ"}
	}`), nil))
	client := newHelixClient(t, transport, helix.ScopeModerationRead)

	res, err := client.GetModerators(context.Background(), helix.GetModeratorsRequest{BroadcasterID: "198704263"})
	if err != nil {
		t.Fatalf("get moderators: %v", err)
	}
	if len(res.Data) != 2 || res.Data[0].UserName != "quotrok" {
		t.Fatalf("unexpected moderators: %+v", res.Data)
	}
	if res.Cursor == nil || *res.Cursor != "eyJiIjpudWxsfQ" {
		t.Fatalf("expected cursor, got %v", res.Cursor)
	}

	req := transport.Requests()[0]
	if req.URL != core.DefaultHelixBaseURL+"/moderation/moderators" {
		t.Fatalf("unexpected url %q", req.URL)
	}
	if req.Query.Get("broadcaster_id") != "198704263" {
		t.Fatalf("unexpected query %v", req.Query)
	}
}

func TestGetModeratorsWithoutScopeDoesNoIO(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest")
	client := newHelixClient(t, transport, "chat:read")

	_, err := client.GetModerators(context.Background(), helix.GetModeratorsRequest{BroadcasterID: "198704263"})
	if !errors.Is(err, core.KindInsufficientScope) {
		t.Fatalf("expected insufficient scope, got %v", err)
	}
	if transport.CallCount() != 0 {
		t.Fatalf("expected no transport calls, got %d", transport.CallCount())
	}
}

func TestMissingBroadcasterIsInvalidRequest(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest")
	client := newHelixClient(t, transport, helix.ScopeModerationRead)

	if _, err := client.GetBannedUsers(context.Background(), helix.GetBannedUsersRequest{}); !errors.Is(err, core.KindInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if transport.CallCount() != 0 {
		t.Fatalf("expected no transport calls, got %d", transport.CallCount())
	}
}

func TestWalkersRejectMissingBroadcasterBeforeIO(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest")
	client := newHelixClient(t, transport, helix.ScopeModerationRead)
	ctx := context.Background()

	firstPages := map[string]func() error{
		"moderators": func() error {
			_, err := client.Moderators(helix.GetModeratorsRequest{}).Next(ctx)
			return err
		},
		"moderator events": func() error {
			_, err := client.ModeratorEvents(helix.GetModeratorEventsRequest{}).Next(ctx)
			return err
		},
		"banned users": func() error {
			_, err := client.BannedUsers(helix.GetBannedUsersRequest{}).Next(ctx)
			return err
		},
		"banned events": func() error {
			_, err := client.BannedEvents(helix.GetBannedEventsRequest{}).Next(ctx)
			return err
		},
	}
	for name, next := range firstPages {
		if err := next(); !errors.Is(err, core.KindInvalidRequest) {
			t.Fatalf("%s: expected invalid request, got %v", name, err)
		}
	}
	if transport.CallCount() != 0 {
		t.Fatalf("expected no transport calls, got %d", transport.CallCount())
	}

	walker := client.BannedUsers(helix.GetBannedUsersRequest{})
	_, _ = walker.Next(ctx)
	if _, err := walker.Next(ctx); !errors.Is(err, core.ErrNoMorePages) {
		t.Fatalf("expected a failed walker to end, got %v", err)
	}

	var unset *helix.Client
	if _, err := unset.Moderators(helix.GetModeratorsRequest{BroadcasterID: "42"}).Next(ctx); !errors.Is(err, core.KindInvalidRequest) {
		t.Fatalf("expected unconfigured client error, got %v", err)
	}
}

func TestGetBannedUsersDistinguishesTimeouts(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{
		"data": [
			{"user_id": "423374343", "user_name": "glowillig", "expires_at": "2019-03-15T02:00:28Z"},
			{"user_id": "424596340", "user_name": "quotrok", "expires_at": ""}
		],
		"pagination": {}
	}`), nil))
	client := newHelixClient(t, transport, helix.ScopeModerationRead)

	res, err := client.GetBannedUsers(context.Background(), helix.GetBannedUsersRequest{
		BroadcasterID: "198704263",
		UserIDs:       []string{"423374343", "424596340"},
	})
	if err != nil {
		t.Fatalf("get banned users: %v", err)
	}
	if expiry, ok := res.Data[0].Expiry(); !ok || expiry.Year() != 2019 {
		t.Fatalf("expected timeout expiry, got %v %v", expiry, ok)
	}
	if !res.Data[1].Permanent() {
		t.Fatalf("expected permanent ban")
	}
	if res.Cursor != nil {
		t.Fatalf("expected no cursor, got %q", *res.Cursor)
	}
	if got := transport.Requests()[0].Query["user_id"]; len(got) != 2 {
		t.Fatalf("expected repeated user_id, got %v", got)
	}
}

func TestBannedEventsWalkerFollowsCursor(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		devkit.RawResponse(200, []byte(`{
			"data": [{"id": "1", "event_type": "moderation.user.ban", "event_timestamp": "2019-03-13T15:55:14Z", "version": "1.0", "event_data": {"user_id": "424596340", "expires_at": ""}}],
			"pagination": {"cursor": "page-2"}
		}`), nil),
		devkit.RawResponse(200, []byte(`{
			"data": [{"id": "2", "event_type": "moderation.user.unban", "event_timestamp": "2019-03-13T15:55:30Z", "version": "1.0", "event_data": {"user_id": "424596340"}}],
			"pagination": {}
		}`), nil),
	)
	client := newHelixClient(t, transport, helix.ScopeModerationRead)

	events, err := client.BannedEvents(helix.GetBannedEventsRequest{BroadcasterID: "198704263", First: 1}).Collect(context.Background())
	if err != nil {
		t.Fatalf("collect banned events: %v", err)
	}
	if len(events) != 2 || events[0].EventType != helix.EventUserBan || events[1].EventType != helix.EventUserUnban {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].EventData["user_id"] != "424596340" {
		t.Fatalf("unexpected event data: %v", events[0].EventData)
	}

	requests := transport.Requests()
	if requests[0].Query.Get("first") != "1" || requests[0].Query.Has("after") {
		t.Fatalf("unexpected first page query %v", requests[0].Query)
	}
	if requests[1].Query.Get("after") != "page-2" {
		t.Fatalf("unexpected second page query %v", requests[1].Query)
	}
}

func TestCheckAutoModStatusPostsDataEnvelope(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest", devkit.RawResponse(200, []byte(`{
		"data": [{"msg_id": "123", "is_permitted": true}, {"msg_id": "393", "is_permitted": false}]
	}`), nil))
	client := newHelixClient(t, transport, helix.ScopeModerationRead)

	res, err := client.CheckAutoModStatus(context.Background(), helix.CheckAutoModStatusRequest{
		BroadcasterID: "198704263",
		Messages: []helix.AutoModMessage{
			{MsgID: "123", MsgText: "automod please approve this!", UserID: "1234"},
			{MsgID: "393", MsgText: "other", UserID: "1234"},
		},
	})
	if err != nil {
		t.Fatalf("check automod status: %v", err)
	}
	if !res.Data[0].IsPermitted || res.Data[1].IsPermitted {
		t.Fatalf("unexpected statuses: %+v", res.Data)
	}

	req := transport.Requests()[0]
	if req.Method != "POST" || req.URL != core.DefaultHelixBaseURL+"/moderation/enforcements/status" {
		t.Fatalf("unexpected request %s %s", req.Method, req.URL)
	}
	var body struct {
		Data []map[string]string `json:"data"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data) != 2 || body.Data[0]["msg_text"] != "automod please approve this!" {
		t.Fatalf("unexpected body: %s", req.Body)
	}

	if _, err := client.CheckAutoModStatus(context.Background(), helix.CheckAutoModStatusRequest{BroadcasterID: "1"}); !errors.Is(err, core.KindInvalidRequest) {
		t.Fatalf("expected invalid request for empty messages, got %v", err)
	}
}

func TestGetUsersAndStreams(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		devkit.RawResponse(200, []byte(`{"data":[{"id":"141981764","login":"twitchdev","display_name":"TwitchDev","created_at":"2016-12-14T20:32:28Z"}]}`), nil),
		devkit.RawResponse(200, []byte(`{"data":[{"id":"41375541868","user_login":"twitchdev","viewer_count":78365,"started_at":"2021-03-10T15:04:21Z"}],"pagination":{}}`), nil),
	)
	client := newHelixClient(t, transport)

	users, err := client.GetUsers(context.Background(), helix.GetUsersRequest{Logins: []string{"twitchdev"}})
	if err != nil {
		t.Fatalf("get users: %v", err)
	}
	if users.Data[0].ID != "141981764" || users.Data[0].CreatedAt.Year() != 2016 {
		t.Fatalf("unexpected users: %+v", users.Data)
	}

	var streams []helix.Stream
	for stream, err := range client.Streams(helix.GetStreamsRequest{UserLogins: []string{"twitchdev"}}).All(context.Background()) {
		if err != nil {
			t.Fatalf("walk streams: %v", err)
		}
		streams = append(streams, stream)
	}
	if len(streams) != 1 || streams[0].ViewerCount != 78365 {
		t.Fatalf("unexpected streams: %+v", streams)
	}
	if transport.Requests()[1].URL != core.DefaultHelixBaseURL+"/streams" {
		t.Fatalf("unexpected streams url %q", transport.Requests()[1].URL)
	}
}
