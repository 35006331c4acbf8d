package devkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/goliatone/go-twitch/core"
)

type TransportScript struct {
	Response core.TransportResponse
	Err      error
}

// JSONResponse scripts a response whose body is payload encoded as JSON.
func JSONResponse(status int, payload any, headers map[string]string) TransportScript {
	body, err := json.Marshal(payload)
	if err != nil {
		return TransportScript{Err: fmt.Errorf("devkit: encode payload: %w", err)}
	}
	return RawResponse(status, body, headers)
}

func RawResponse(status int, body []byte, headers map[string]string) TransportScript {
	copied := map[string]string{}
	for key, value := range headers {
		copied[key] = value
	}
	return TransportScript{Response: core.TransportResponse{
		StatusCode: status,
		Headers:    copied,
		Body:       body,
	}}
}

// FakeTransportAdapter replays scripts in order and repeats the last one once
// the script is exhausted. A Handler, when set, takes precedence.
type FakeTransportAdapter struct {
	mu       sync.Mutex
	kind     string
	scripts  []TransportScript
	requests []core.TransportRequest
	Handler  func(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error)
}

func NewFakeTransportAdapter(kind string, scripts ...TransportScript) *FakeTransportAdapter {
	return &FakeTransportAdapter{
		kind:    strings.TrimSpace(strings.ToLower(kind)),
		scripts: append([]TransportScript(nil), scripts...),
	}
}

func (a *FakeTransportAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *FakeTransportAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, fmt.Errorf("devkit: fake transport adapter is nil")
	}
	a.mu.Lock()
	a.requests = append(a.requests, cloneTransportRequest(req))
	index := len(a.requests) - 1
	handler := a.Handler
	var script *TransportScript
	if index < len(a.scripts) {
		script = &a.scripts[index]
	} else if len(a.scripts) > 0 {
		script = &a.scripts[len(a.scripts)-1]
	}
	var scripted TransportScript
	if script != nil {
		scripted = *script
	}
	a.mu.Unlock()

	if handler != nil {
		return handler(ctx, cloneTransportRequest(req))
	}
	if script != nil {
		return cloneTransportResponse(scripted.Response), scripted.Err
	}
	return core.TransportResponse{
		StatusCode: 200,
		Headers:    map[string]string{},
		Metadata:   map[string]any{"kind": a.kind},
	}, nil
}

func (a *FakeTransportAdapter) Requests() []core.TransportRequest {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.TransportRequest, 0, len(a.requests))
	for _, item := range a.requests {
		out = append(out, cloneTransportRequest(item))
	}
	return out
}

func (a *FakeTransportAdapter) CallCount() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func cloneTransportRequest(in core.TransportRequest) core.TransportRequest {
	out := core.TransportRequest{
		Method:               in.Method,
		URL:                  in.URL,
		Headers:              map[string]string{},
		Query:                url.Values{},
		Body:                 append([]byte(nil), in.Body...),
		Metadata:             map[string]any{},
		Timeout:              in.Timeout,
		MaxResponseBodyBytes: in.MaxResponseBodyBytes,
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, values := range in.Query {
		out.Query[key] = append([]string(nil), values...)
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

func cloneTransportResponse(in core.TransportResponse) core.TransportResponse {
	out := core.TransportResponse{
		StatusCode: in.StatusCode,
		Headers:    map[string]string{},
		Body:       append([]byte(nil), in.Body...),
		Metadata:   map[string]any{},
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

var _ core.TransportAdapter = (*FakeTransportAdapter)(nil)
