package transport

import (
	"context"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-twitch/core"
	"github.com/valyala/fasthttp"
)

const KindFastHTTP = "fasthttp"

type FastHTTPDoer interface {
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

// FastHTTPAdapter performs exchanges with valyala/fasthttp. The default
// client never retries idempotent calls on its own.
type FastHTTPAdapter struct {
	Client               FastHTTPDoer
	DefaultHeaders       map[string]string
	DefaultTimeout       time.Duration
	MaxResponseBodyBytes int64
}

func NewFastHTTPAdapter(client FastHTTPDoer) *FastHTTPAdapter {
	if client == nil {
		client = newFastHTTPClient(defaultClientTimeout)
	}
	return &FastHTTPAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		DefaultTimeout:       defaultClientTimeout,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func newFastHTTPClient(timeout time.Duration) *fasthttp.Client {
	return &fasthttp.Client{
		Name:                      defaultUserAgent,
		ReadTimeout:               timeout,
		WriteTimeout:              timeout,
		MaxIdemponentCallAttempts: 1,
		NoDefaultUserAgentHeader:  true,
	}
}

func (*FastHTTPAdapter) Kind() string {
	return KindFastHTTP
}

type fasthttpResult struct {
	response core.TransportResponse
	err      error
}

func (a *FastHTTPAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError(
			"transport: fasthttp adapter requires a client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindFastHTTP},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	prepared, err := prepare(KindFastHTTP, a.DefaultHeaders, req)
	if err != nil {
		return core.TransportResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.TransportResponse{}, cancelledError(KindFastHTTP, err, prepared)
	}

	startedAt := time.Now().UTC()
	deadline := requestDeadline(ctx, req.Timeout, a.DefaultTimeout, startedAt)
	limit := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)

	httpReq := fasthttp.AcquireRequest()
	httpRes := fasthttp.AcquireResponse()
	httpReq.SetRequestURI(prepared.url)
	httpReq.Header.SetMethod(prepared.method)
	for key, value := range prepared.headers {
		httpReq.Header.Set(key, value)
	}
	if len(req.Body) > 0 {
		httpReq.SetBody(req.Body)
	}

	// The goroutine owns the pooled objects so a cancelled caller never
	// races with their release.
	done := make(chan fasthttpResult, 1)
	go func() {
		defer fasthttp.ReleaseRequest(httpReq)
		defer fasthttp.ReleaseResponse(httpRes)

		if err := a.Client.DoDeadline(httpReq, httpRes, deadline); err != nil {
			done <- fasthttpResult{err: exchangeError(KindFastHTTP, err, "transport: execute http request", prepared)}
			return
		}
		status := httpRes.StatusCode()
		payload := httpRes.Body()
		if err := checkBodyLimit(KindFastHTTP, status, len(payload), limit); err != nil {
			done <- fasthttpResult{err: err}
			return
		}
		headers := map[string]string{}
		httpRes.Header.VisitAll(func(key, value []byte) {
			name := string(key)
			if existing, ok := headers[name]; ok {
				headers[name] = existing + "," + string(value)
				return
			}
			headers[name] = string(value)
		})
		done <- fasthttpResult{response: core.TransportResponse{
			StatusCode: status,
			Headers:    headers,
			Body:       append([]byte(nil), payload...),
			Metadata: map[string]any{
				"duration_ms": time.Since(startedAt).Milliseconds(),
				"kind":        KindFastHTTP,
			},
		}}
	}()

	select {
	case <-ctx.Done():
		return core.TransportResponse{}, cancelledError(KindFastHTTP, ctx.Err(), prepared)
	case result := <-done:
		if result.err != nil && ctx.Err() != nil {
			return core.TransportResponse{}, cancelledError(KindFastHTTP, ctx.Err(), prepared)
		}
		return result.response, result.err
	}
}

var _ core.TransportAdapter = (*FastHTTPAdapter)(nil)
