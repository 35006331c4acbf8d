package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type exchangeResult struct {
	response  TransportResponse
	rateLimit RateLimitInfo
	attempts  int
}

// Execute performs one typed API call. Authentication failures are retried
// after invalidating the credential, up to Config.AuthRetries times. Nothing
// else is retried.
func Execute[Res any](ctx context.Context, c *Client, req Request[Res]) (Response[Res], error) {
	if c == nil {
		return Response[Res]{}, NewError(KindInvalidRequest, "", "client is nil")
	}
	if req == nil {
		return Response[Res]{}, NewError(KindInvalidRequest, "", "request is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := req.Descriptor().Endpoint()
	startedAt := c.now()

	result, err := c.exchange(ctx, endpoint, req.Params().clone())
	if err != nil {
		c.observeCall(ctx, startedAt, endpoint, result.attempts, result.response.StatusCode, err)
		return Response[Res]{}, err
	}

	out, err := decodeResponse[Res](endpoint, result)
	c.observeCall(ctx, startedAt, endpoint, result.attempts, result.response.StatusCode, err)
	if err != nil {
		return Response[Res]{}, err
	}
	return out, nil
}

func (c *Client) exchange(ctx context.Context, endpoint Endpoint, params Params) (exchangeResult, error) {
	op := endpoint.Operation()
	result := exchangeResult{}

	var (
		target string
		body   []byte
		built  bool
	)
	for attempt := 1; ; attempt++ {
		headers := map[string]string{"Accept": "application/json"}
		cred := Credential{}
		if endpoint.Auth == AuthRequired {
			var err error
			cred, err = c.credential(ctx, op)
			if err != nil {
				return result, err
			}
			if missing := MissingScopes(endpoint.Scopes, cred.Scopes); len(missing) > 0 {
				scopeErr := NewError(KindInsufficientScope, op, "credential lacks required scopes")
				scopeErr.MissingScopes = missing
				return result, scopeErr
			}
			authHeaders(headers, cred)
		}

		if !built {
			var err error
			target, body, err = c.buildRequest(endpoint, params)
			if err != nil {
				return result, err
			}
			built = true
		}
		if body != nil {
			headers["Content-Type"] = "application/json"
		}

		key := c.rateLimitKey(endpoint, cred)
		if c.rateLimit != nil {
			if err := c.rateLimit.BeforeCall(ctx, key); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return result, WrapError(KindTransportFailure, op, "cancelled while pacing", ctxErr)
				}
				c.log(ctx, "warn", "rate limit policy before call failed", map[string]any{
					"operation": op,
					"error":     err.Error(),
				})
			}
		}

		result.attempts = attempt
		res, err := c.transport.Do(ctx, TransportRequest{
			Method:               endpoint.Method,
			URL:                  target,
			Headers:              headers,
			Query:                params.Query,
			Body:                 body,
			Timeout:              c.config.RequestTimeout,
			MaxResponseBodyBytes: c.config.MaxResponseBodyBytes,
			Metadata: map[string]any{
				"operation": op,
				"attempt":   attempt,
			},
		})
		if err != nil {
			return result, WrapError(KindTransportFailure, op, "exchange failed", err)
		}
		info := ParseRateLimit(res.Headers)
		result.response = res
		result.rateLimit = info

		if c.rateLimit != nil {
			meta := ResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers, RateLimit: info}
			if err := c.rateLimit.AfterCall(ctx, key, meta); err != nil {
				c.log(ctx, "warn", "rate limit policy after call failed", map[string]any{
					"operation": op,
					"error":     err.Error(),
				})
			}
		}

		status := res.StatusCode
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if endpoint.Auth != AuthRequired {
				return result, statusError(KindAuthenticationRejected, op, res, info)
			}
			if attempt <= c.config.AuthRetries {
				// Only a rejection that will be retried gives up the credential.
				if c.credentials != nil {
					c.credentials.Invalidate(ctx, Invalidation{
						AccessToken: cred.AccessToken,
						StatusCode:  status,
						Reason:      ServerMessage(res.Body),
						Endpoint:    op,
					})
				}
				c.log(ctx, "warn", "credential rejected, retrying with a fresh credential", map[string]any{
					"operation":   op,
					"status_code": status,
					"attempt":     attempt,
				})
				continue
			}
			return result, statusError(KindAuthenticationRejected, op, res, info)
		case status == http.StatusTooManyRequests || info.Exhausted():
			return result, statusError(KindRateLimited, op, res, info)
		case status >= 500:
			return result, statusError(KindServerError, op, res, info)
		case status >= 400:
			return result, statusError(KindRequestRejected, op, res, info)
		case status < 200 || status >= 300:
			return result, statusError(KindMalformedResponse, op, res, info)
		}
		return result, nil
	}
}

func (c *Client) buildRequest(endpoint Endpoint, params Params) (string, []byte, error) {
	op := endpoint.Operation()
	path, err := renderPath(endpoint.Path, params.Path)
	if err != nil {
		return "", nil, err
	}
	base := c.config.BaseURL(endpoint.API)
	target := base
	if path != "" {
		target = base + "/" + path
	}
	if params.Body == nil {
		return target, nil, nil
	}
	if raw, ok := params.Body.(json.RawMessage); ok {
		return target, append([]byte(nil), raw...), nil
	}
	encoded, err := json.Marshal(params.Body)
	if err != nil {
		return "", nil, WrapError(KindInvalidRequest, op, "encode request body", err)
	}
	return target, encoded, nil
}

func statusError(kind Kind, op string, res TransportResponse, info RateLimitInfo) *Error {
	err := &Error{
		Kind:          kind,
		Op:            op,
		StatusCode:    res.StatusCode,
		ServerMessage: ServerMessage(res.Body),
		Body:          append([]byte(nil), res.Body...),
	}
	if kind == KindRateLimited || info.Present() {
		limit := info
		err.RateLimit = &limit
	}
	if kind == KindMalformedResponse {
		err.Message = "unexpected status"
	}
	return err
}

type twitchErrorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// ServerMessage extracts the message from a Twitch {"error","status","message"} body.
func ServerMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return ""
	}
	var decoded twitchErrorBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(decoded.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(decoded.Error)
}

type dataEnvelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		Cursor *string `json:"cursor"`
	} `json:"pagination"`
	Total *int `json:"total"`
}

func decodeResponse[Res any](endpoint Endpoint, result exchangeResult) (Response[Res], error) {
	op := endpoint.Operation()
	res := result.response
	out := Response[Res]{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		RateLimit:  result.rateLimit,
	}

	switch endpoint.Envelope {
	case EnvelopeNone:
		return out, nil
	case EnvelopeRaw:
		if err := decodeJSON(res.Body, &out.Data); err != nil {
			return Response[Res]{}, malformed(op, res, err)
		}
		return out, nil
	default:
		var envelope dataEnvelope
		if err := decodeJSON(res.Body, &envelope); err != nil {
			return Response[Res]{}, malformed(op, res, err)
		}
		if len(envelope.Data) == 0 {
			return Response[Res]{}, malformed(op, res, errors.New(`missing "data" key`))
		}
		if err := json.Unmarshal(envelope.Data, &out.Data); err != nil {
			return Response[Res]{}, malformed(op, res, err)
		}
		if envelope.Pagination != nil && envelope.Pagination.Cursor != nil {
			cursor := *envelope.Pagination.Cursor
			out.Cursor = &cursor
		}
		out.Total = envelope.Total
		return out, nil
	}
}

func decodeJSON(body []byte, target any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, target)
}

func malformed(op string, res TransportResponse, cause error) *Error {
	return &Error{
		Kind:       KindMalformedResponse,
		Op:         op,
		StatusCode: res.StatusCode,
		Message:    "response does not match expected shape",
		Body:       append([]byte(nil), res.Body...),
		Err:        cause,
	}
}
