package helix

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-twitch/core"
)

const ScopeModerationRead = "moderation:read"

const (
	EventModeratorAdd    = "moderation.moderator.add"
	EventModeratorRemove = "moderation.moderator.remove"
	EventUserBan         = "moderation.user.ban"
	EventUserUnban       = "moderation.user.unban"
)

type Moderator struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// ModerationEvent is shared by the moderator and ban event feeds. EventData
// carries broadcaster_id, broadcaster_name, user_id, user_name and, for bans,
// expires_at.
type ModerationEvent struct {
	ID             string            `json:"id"`
	EventType      string            `json:"event_type"`
	EventTimestamp time.Time         `json:"event_timestamp"`
	Version        string            `json:"version"`
	EventData      map[string]string `json:"event_data"`
}

// BannedUser.ExpiresAt is an RFC3339 timestamp for timeouts and empty for bans.
type BannedUser struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ExpiresAt string `json:"expires_at"`
}

// Expiry parses ExpiresAt; ok is false for permanent bans.
func (b BannedUser) Expiry() (time.Time, bool) {
	if b.ExpiresAt == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, b.ExpiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func (b BannedUser) Permanent() bool {
	return b.ExpiresAt == ""
}

type GetModeratorsRequest struct {
	BroadcasterID string
	UserIDs       []string
}

func (GetModeratorsRequest) Descriptor() core.Descriptor[[]Moderator] {
	return core.Descriptor[[]Moderator]{
		Method:    http.MethodGet,
		Path:      "moderation/moderators",
		Scopes:    []string{ScopeModerationRead},
		Paginated: true,
	}
}

func (r GetModeratorsRequest) Params() core.Params {
	return core.Params{Query: core.NewQuery().
		Set("broadcaster_id", r.BroadcasterID).
		Add("user_id", r.UserIDs...).
		Values()}
}

type GetModeratorEventsRequest struct {
	BroadcasterID string
	UserIDs       []string
}

func (GetModeratorEventsRequest) Descriptor() core.Descriptor[[]ModerationEvent] {
	return core.Descriptor[[]ModerationEvent]{
		Method:    http.MethodGet,
		Path:      "moderation/moderators/events",
		Scopes:    []string{ScopeModerationRead},
		Paginated: true,
	}
}

func (r GetModeratorEventsRequest) Params() core.Params {
	return core.Params{Query: core.NewQuery().
		Set("broadcaster_id", r.BroadcasterID).
		Add("user_id", r.UserIDs...).
		Values()}
}

type GetBannedUsersRequest struct {
	BroadcasterID string
	UserIDs       []string
}

func (GetBannedUsersRequest) Descriptor() core.Descriptor[[]BannedUser] {
	return core.Descriptor[[]BannedUser]{
		Method:    http.MethodGet,
		Path:      "moderation/banned",
		Scopes:    []string{ScopeModerationRead},
		Paginated: true,
	}
}

func (r GetBannedUsersRequest) Params() core.Params {
	return core.Params{Query: core.NewQuery().
		Set("broadcaster_id", r.BroadcasterID).
		Add("user_id", r.UserIDs...).
		Values()}
}

// GetBannedEventsRequest.First caps the page size (server default 20, max 100).
type GetBannedEventsRequest struct {
	BroadcasterID string
	UserIDs       []string
	First         int
}

func (GetBannedEventsRequest) Descriptor() core.Descriptor[[]ModerationEvent] {
	return core.Descriptor[[]ModerationEvent]{
		Method:    http.MethodGet,
		Path:      "moderation/banned/events",
		Scopes:    []string{ScopeModerationRead},
		Paginated: true,
	}
}

func (r GetBannedEventsRequest) Params() core.Params {
	return core.Params{Query: core.NewQuery().
		Set("broadcaster_id", r.BroadcasterID).
		Add("user_id", r.UserIDs...).
		SetInt("first", r.First).
		Values()}
}

type AutoModMessage struct {
	MsgID   string `json:"msg_id"`
	MsgText string `json:"msg_text"`
	UserID  string `json:"user_id"`
}

type AutoModStatus struct {
	MsgID       string `json:"msg_id"`
	IsPermitted bool   `json:"is_permitted"`
}

type CheckAutoModStatusRequest struct {
	BroadcasterID string
	Messages      []AutoModMessage
}

type autoModBody struct {
	Data []AutoModMessage `json:"data"`
}

func (CheckAutoModStatusRequest) Descriptor() core.Descriptor[[]AutoModStatus] {
	return core.Descriptor[[]AutoModStatus]{
		Method: http.MethodPost,
		Path:   "moderation/enforcements/status",
		Scopes: []string{ScopeModerationRead},
	}
}

func (r CheckAutoModStatusRequest) Params() core.Params {
	messages := r.Messages
	if messages == nil {
		messages = []AutoModMessage{}
	}
	return core.Params{
		Query: core.NewQuery().Set("broadcaster_id", r.BroadcasterID).Values(),
		Body:  autoModBody{Data: messages},
	}
}

func (c *Client) GetModerators(ctx context.Context, req GetModeratorsRequest) (core.Response[[]Moderator], error) {
	if err := requireField("helix get moderators", "broadcaster_id", req.BroadcasterID); err != nil {
		return core.Response[[]Moderator]{}, err
	}
	return Do(ctx, c, core.Request[[]Moderator](req))
}

func (c *Client) Moderators(req GetModeratorsRequest) *core.Walker[Moderator] {
	return walkRequiring(c, core.Request[[]Moderator](req), "helix get moderators", "broadcaster_id", req.BroadcasterID)
}

func (c *Client) GetModeratorEvents(ctx context.Context, req GetModeratorEventsRequest) (core.Response[[]ModerationEvent], error) {
	if err := requireField("helix get moderator events", "broadcaster_id", req.BroadcasterID); err != nil {
		return core.Response[[]ModerationEvent]{}, err
	}
	return Do(ctx, c, core.Request[[]ModerationEvent](req))
}

func (c *Client) ModeratorEvents(req GetModeratorEventsRequest) *core.Walker[ModerationEvent] {
	return walkRequiring(c, core.Request[[]ModerationEvent](req), "helix get moderator events", "broadcaster_id", req.BroadcasterID)
}

func (c *Client) GetBannedUsers(ctx context.Context, req GetBannedUsersRequest) (core.Response[[]BannedUser], error) {
	if err := requireField("helix get banned users", "broadcaster_id", req.BroadcasterID); err != nil {
		return core.Response[[]BannedUser]{}, err
	}
	return Do(ctx, c, core.Request[[]BannedUser](req))
}

func (c *Client) BannedUsers(req GetBannedUsersRequest) *core.Walker[BannedUser] {
	return walkRequiring(c, core.Request[[]BannedUser](req), "helix get banned users", "broadcaster_id", req.BroadcasterID)
}

func (c *Client) GetBannedEvents(ctx context.Context, req GetBannedEventsRequest) (core.Response[[]ModerationEvent], error) {
	if err := requireField("helix get banned events", "broadcaster_id", req.BroadcasterID); err != nil {
		return core.Response[[]ModerationEvent]{}, err
	}
	return Do(ctx, c, core.Request[[]ModerationEvent](req))
}

func (c *Client) BannedEvents(req GetBannedEventsRequest) *core.Walker[ModerationEvent] {
	return walkRequiring(c, core.Request[[]ModerationEvent](req), "helix get banned events", "broadcaster_id", req.BroadcasterID)
}

func (c *Client) CheckAutoModStatus(ctx context.Context, req CheckAutoModStatusRequest) (core.Response[[]AutoModStatus], error) {
	if err := requireField("helix check automod status", "broadcaster_id", req.BroadcasterID); err != nil {
		return core.Response[[]AutoModStatus]{}, err
	}
	if len(req.Messages) == 0 {
		return core.Response[[]AutoModStatus]{}, core.NewError(core.KindInvalidRequest, "helix check automod status", "at least one message is required")
	}
	return Do(ctx, c, core.Request[[]AutoModStatus](req))
}
