// Package tmi reads the unauthenticated tmi.twitch.tv chat endpoints.
package tmi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goliatone/go-twitch/core"
)

type Chatters struct {
	Broadcaster []string `json:"broadcaster"`
	VIPs        []string `json:"vips"`
	Moderators  []string `json:"moderators"`
	Staff       []string `json:"staff"`
	Admins      []string `json:"admins"`
	GlobalMods  []string `json:"global_mods"`
	Viewers     []string `json:"viewers"`
}

// All returns every login across all groups, broadcaster first.
func (c Chatters) All() []string {
	out := make([]string, 0, len(c.Broadcaster)+len(c.VIPs)+len(c.Moderators)+len(c.Staff)+len(c.Admins)+len(c.GlobalMods)+len(c.Viewers))
	for _, group := range [][]string{c.Broadcaster, c.VIPs, c.Moderators, c.Staff, c.Admins, c.GlobalMods, c.Viewers} {
		out = append(out, group...)
	}
	return out
}

type ChattersResponse struct {
	ChatterCount int      `json:"chatter_count"`
	Chatters     Chatters `json:"chatters"`
}

type GetChattersRequest struct {
	Channel string
}

func (GetChattersRequest) Descriptor() core.Descriptor[ChattersResponse] {
	return core.Descriptor[ChattersResponse]{
		API:      core.APITMI,
		Method:   http.MethodGet,
		Path:     "group/user/{channel}/chatters",
		Auth:     core.AuthNone,
		Envelope: core.EnvelopeRaw,
	}
}

func (r GetChattersRequest) Params() core.Params {
	return core.Params{Path: map[string]string{"channel": strings.ToLower(strings.TrimPrefix(strings.TrimSpace(r.Channel), "#"))}}
}

type Client struct {
	engine *core.Client
}

func NewClient(engine *core.Client) (*Client, error) {
	if engine == nil {
		return nil, errors.New("tmi: engine client is required")
	}
	return &Client{engine: engine}, nil
}

// GetChatters lists the logins currently in channel's chat, grouped by role.
func (c *Client) GetChatters(ctx context.Context, channel string) (ChattersResponse, error) {
	req := GetChattersRequest{Channel: channel}
	if req.Params().Path["channel"] == "" {
		return ChattersResponse{}, core.NewError(core.KindInvalidRequest, "tmi get chatters", "channel is required")
	}
	res, err := core.Execute(ctx, c.engine, core.Request[ChattersResponse](req))
	if err != nil {
		return ChattersResponse{}, err
	}
	return res.Data, nil
}
