package helix

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-twitch/core"
)

type User struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	Type            string    `json:"type"`
	BroadcasterType string    `json:"broadcaster_type"`
	Description     string    `json:"description"`
	ProfileImageURL string    `json:"profile_image_url"`
	OfflineImageURL string    `json:"offline_image_url"`
	ViewCount       int       `json:"view_count"`
	Email           string    `json:"email,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// GetUsersRequest with no ids or logins returns the token's own user.
type GetUsersRequest struct {
	IDs    []string
	Logins []string
}

func (GetUsersRequest) Descriptor() core.Descriptor[[]User] {
	return core.Descriptor[[]User]{
		Method: http.MethodGet,
		Path:   "users",
	}
}

func (r GetUsersRequest) Params() core.Params {
	return core.Params{Query: core.NewQuery().
		Add("id", r.IDs...).
		Add("login", r.Logins...).
		Values()}
}

func (c *Client) GetUsers(ctx context.Context, req GetUsersRequest) (core.Response[[]User], error) {
	if len(req.IDs)+len(req.Logins) > 100 {
		return core.Response[[]User]{}, core.NewError(core.KindInvalidRequest, "helix get users", "at most 100 ids and logins combined")
	}
	return Do(ctx, c, core.Request[[]User](req))
}

type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	Language     string    `json:"language"`
	ThumbnailURL string    `json:"thumbnail_url"`
	IsMature     bool      `json:"is_mature"`
}

type GetStreamsRequest struct {
	UserIDs    []string
	UserLogins []string
	GameIDs    []string
	Languages  []string
	First      int
}

func (GetStreamsRequest) Descriptor() core.Descriptor[[]Stream] {
	return core.Descriptor[[]Stream]{
		Method:    http.MethodGet,
		Path:      "streams",
		Paginated: true,
	}
}

func (r GetStreamsRequest) Params() core.Params {
	return core.Params{Query: core.NewQuery().
		Add("user_id", r.UserIDs...).
		Add("user_login", r.UserLogins...).
		Add("game_id", r.GameIDs...).
		Add("language", r.Languages...).
		SetInt("first", r.First).
		Values()}
}

func (c *Client) GetStreams(ctx context.Context, req GetStreamsRequest) (core.Response[[]Stream], error) {
	return Do(ctx, c, core.Request[[]Stream](req))
}

func (c *Client) Streams(req GetStreamsRequest) *core.Walker[Stream] {
	return Walk(c, core.Request[[]Stream](req))
}
