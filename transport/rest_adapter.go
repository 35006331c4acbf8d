package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-twitch/core"
)

const KindREST = "rest"

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter performs exchanges with net/http.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	DefaultTimeout       time.Duration
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	prepared, err := prepare(KindREST, a.DefaultHeaders, req)
	if err != nil {
		return core.TransportResponse{}, err
	}

	startedAt := time.Now().UTC()
	requestCtx, cancel := context.WithDeadline(ctx, requestDeadline(ctx, req.Timeout, a.DefaultTimeout, startedAt))
	defer cancel()

	httpReq, err := newHTTPRequest(requestCtx, prepared, req.Body)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: create http request", http.StatusBadRequest, prepared.fields(KindREST))
	}
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		if ctxErr := requestCtx.Err(); ctxErr != nil {
			return core.TransportResponse{}, cancelledError(KindREST, ctxErr, prepared)
		}
		return core.TransportResponse{}, exchangeError(KindREST, err, "transport: execute http request", prepared)
	}
	defer httpRes.Body.Close()

	limit := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		return core.TransportResponse{}, exchangeError(KindREST, err, "transport: read response body", prepared)
	}
	if err := checkBodyLimit(KindREST, httpRes.StatusCode, len(payload), limit); err != nil {
		return core.TransportResponse{}, err
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata:   map[string]any{"duration_ms": time.Since(startedAt).Milliseconds(), "kind": KindREST},
	}, nil
}

func newHTTPRequest(ctx context.Context, prepared preparedRequest, payload []byte) (*http.Request, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, prepared.method, prepared.url, body)
	if err != nil {
		return nil, err
	}
	for key, value := range prepared.headers {
		httpReq.Header.Set(key, value)
	}
	return httpReq, nil
}

// flattenHeaders joins repeated header values with a comma.
func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
