package transport

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-twitch/core"
)

// KindDisabled builds an adapter that refuses every call. It lets a client be
// wired without network access.
const KindDisabled = "disabled"

type UnsupportedAdapter struct {
	kind   string
	reason string
}

func NewUnsupportedAdapter(kind string, reason string) *UnsupportedAdapter {
	return &UnsupportedAdapter{
		kind:   normalizeKind(kind),
		reason: strings.TrimSpace(reason),
	}
}

func (a *UnsupportedAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *UnsupportedAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, transportError("transport: adapter is nil", goerrors.CategoryInternal, 0, nil)
	}
	metadata := map[string]any{"kind": a.kind, "url": req.URL}
	message := "transport: " + a.kind + " adapter is not configured"
	if a.reason != "" {
		message += ": " + a.reason
		metadata["reason"] = a.reason
	}
	return core.TransportResponse{}, transportError(message, goerrors.CategoryExternal, 0, metadata)
}

func unsupportedFactory(kind string) AdapterFactory {
	return func(config map[string]any) (core.TransportAdapter, error) {
		reason, _ := config["reason"].(string)
		return NewUnsupportedAdapter(kind, reason), nil
	}
}

var _ core.TransportAdapter = (*UnsupportedAdapter)(nil)
