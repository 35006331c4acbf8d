package helix

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-twitch/core"
)

type Client struct {
	engine *core.Client
}

func NewClient(engine *core.Client) (*Client, error) {
	if engine == nil {
		return nil, errors.New("helix: engine client is required")
	}
	return &Client{engine: engine}, nil
}

func (c *Client) Engine() *core.Client {
	return c.engine
}

// Do runs any helix request through the engine.
func Do[Res any](ctx context.Context, c *Client, req core.Request[Res]) (core.Response[Res], error) {
	if c == nil || c.engine == nil {
		return core.Response[Res]{}, core.NewError(core.KindInvalidRequest, "helix", "client is not configured")
	}
	return core.Execute(ctx, c.engine, req)
}

// Walk returns a lazy walker over a paginated helix request. An unconfigured
// client yields a walker that fails on its first page.
func Walk[T any](c *Client, req core.Request[[]T]) *core.Walker[T] {
	if c == nil || c.engine == nil {
		return core.FailedWalker[T](core.NewError(core.KindInvalidRequest, "helix", "client is not configured"))
	}
	return core.Paginate(c.engine, req)
}

// walkRequiring is Walk guarded by a required field check.
func walkRequiring[T any](c *Client, req core.Request[[]T], op string, name string, value string) *core.Walker[T] {
	if err := requireField(op, name, value); err != nil {
		return core.FailedWalker[T](err)
	}
	return Walk(c, req)
}

func requireField(op string, name string, value string) error {
	if strings.TrimSpace(value) == "" {
		return core.NewError(core.KindInvalidRequest, op, name+" is required")
	}
	return nil
}
