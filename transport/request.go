package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-twitch/core"
)

const (
	defaultClientTimeout           = 30 * time.Second
	defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB
	defaultUserAgent               = "go-twitch"
)

type preparedRequest struct {
	method  string
	url     string
	headers map[string]string
}

// prepare merges the query into the url and the adapter headers under the
// request headers.
func prepare(kind string, defaults map[string]string, req core.TransportRequest) (preparedRequest, error) {
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return preparedRequest{}, transportError(
			"transport: request url is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": kind},
		)
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return preparedRequest{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"adapter": kind, "url": raw},
		)
	}
	if len(req.Query) > 0 {
		query := parsedURL.Query()
		for key, values := range req.Query {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			query.Del(key)
			for _, value := range values {
				query.Add(key, value)
			}
		}
		parsedURL.RawQuery = query.Encode()
	}

	headers := map[string]string{"User-Agent": defaultUserAgent}
	for _, source := range []map[string]string{defaults, req.Headers} {
		for key, value := range source {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			headers[http.CanonicalHeaderKey(key)] = strings.TrimSpace(value)
		}
	}
	return preparedRequest{method: method, url: parsedURL.String(), headers: headers}, nil
}

func requestDeadline(ctx context.Context, timeout time.Duration, fallback time.Duration, now time.Time) time.Time {
	if timeout <= 0 {
		timeout = fallback
	}
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	deadline := now.Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

func checkBodyLimit(kind string, status int, size int, limit int64) error {
	if int64(size) <= limit {
		return nil
	}
	return transportError(
		fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
		goerrors.CategoryExternal,
		http.StatusBadGateway,
		map[string]any{
			"adapter":          kind,
			"status_code":      status,
			"response_limit_b": limit,
		},
	)
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultResponseBodyLimit
}

func cancelledError(kind string, err error, prepared preparedRequest) error {
	return transportWrapError(
		err,
		goerrors.CategoryExternal,
		"transport: request cancelled",
		http.StatusGatewayTimeout,
		prepared.fields(kind),
	)
}

// fields describes the exchange for error metadata.
func (p preparedRequest) fields(kind string) map[string]any {
	return map[string]any{"adapter": kind, "method": p.method, "url": p.url}
}

func exchangeError(kind string, err error, message string, prepared preparedRequest) error {
	return transportWrapError(err, goerrors.CategoryExternal, message, http.StatusBadGateway, prepared.fields(kind))
}
