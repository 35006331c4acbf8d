package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeTransportFailure  = "TWITCH_TRANSPORT_FAILURE"
	ErrorCodeAuthRejected      = "TWITCH_AUTH_REJECTED"
	ErrorCodeInsufficientScope = "TWITCH_INSUFFICIENT_SCOPE"
	ErrorCodeRateLimited       = "TWITCH_RATE_LIMITED"
	ErrorCodeServerError       = "TWITCH_SERVER_ERROR"
	ErrorCodeMalformedResponse = "TWITCH_MALFORMED_RESPONSE"
	ErrorCodeProtocolViolation = "TWITCH_PROTOCOL_VIOLATION"
	ErrorCodeRequestRejected   = "TWITCH_REQUEST_REJECTED"
	ErrorCodeBadInput          = "TWITCH_BAD_INPUT"
	ErrorCodeInternal          = "TWITCH_INTERNAL_ERROR"
)

// Kind classifies every failure surfaced by this module. A Kind is itself an
// error so callers can match with errors.Is(err, core.KindRateLimited).
type Kind string

const (
	KindTransportFailure       Kind = "transport_failure"
	KindAuthenticationRejected Kind = "authentication_rejected"
	KindInsufficientScope      Kind = "insufficient_scope"
	KindRateLimited            Kind = "rate_limited"
	KindServerError            Kind = "server_error"
	KindMalformedResponse      Kind = "malformed_response"
	KindProtocolViolation      Kind = "protocol_violation"
	KindRequestRejected        Kind = "request_rejected"
	KindInvalidRequest         Kind = "invalid_request"
)

func (k Kind) Error() string {
	return "twitch: " + strings.ReplaceAll(string(k), "_", " ")
}

// Retryable reports whether a failure of this kind may succeed when repeated
// later without caller intervention.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransportFailure, KindRateLimited, KindServerError:
		return true
	}
	return false
}

var ErrNoMorePages = errors.New("core: no more pages")

type Error struct {
	Kind          Kind
	Op            string
	StatusCode    int
	Message       string
	ServerMessage string
	MissingScopes []string
	RateLimit     *RateLimitInfo
	Body          []byte
	Err           error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.ServerMessage != "" {
		b.WriteString(": ")
		b.WriteString(e.ServerMessage)
	}
	if len(e.MissingScopes) > 0 {
		b.WriteString(": missing scopes ")
		b.WriteString(strings.Join(e.MissingScopes, ","))
	}
	if e.Kind == KindRateLimited && e.RateLimit != nil && e.RateLimit.Reset != "" {
		b.WriteString(": reset=")
		b.WriteString(e.RateLimit.Reset)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

// ResetHint returns the Ratelimit-Reset header exactly as the server sent it.
func (e *Error) ResetHint() string {
	if e == nil || e.RateLimit == nil {
		return ""
	}
	return e.RateLimit.Reset
}

func (e *Error) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category, code, textCode := kindEnvelope(e.Kind)
	metadata := map[string]any{"kind": string(e.Kind)}
	if e.Op != "" {
		metadata["operation"] = e.Op
	}
	if e.StatusCode > 0 {
		metadata["status_code"] = e.StatusCode
	}
	if len(e.MissingScopes) > 0 {
		metadata["missing_scopes"] = append([]string(nil), e.MissingScopes...)
	}
	if e.RateLimit != nil && e.RateLimit.Reset != "" {
		metadata["ratelimit_reset"] = e.RateLimit.Reset
	}
	var out *goerrors.Error
	if e.Err != nil {
		out = goerrors.Wrap(e.Err, category, e.Error())
	} else {
		out = goerrors.New(e.Error(), category)
	}
	return out.WithCode(code).WithTextCode(textCode).WithMetadata(metadata)
}

func NewError(kind Kind, op string, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func WrapError(kind Kind, op string, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var kind Kind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}

// MapError converts any error into a go-errors envelope carrying a TWITCH_* text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.ToServiceError()
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func kindEnvelope(kind Kind) (goerrors.Category, int, string) {
	switch kind {
	case KindTransportFailure:
		return goerrors.CategoryExternal, http.StatusBadGateway, ErrorCodeTransportFailure
	case KindAuthenticationRejected:
		return goerrors.CategoryAuth, http.StatusUnauthorized, ErrorCodeAuthRejected
	case KindInsufficientScope:
		return goerrors.CategoryAuthz, http.StatusForbidden, ErrorCodeInsufficientScope
	case KindRateLimited:
		return goerrors.CategoryRateLimit, http.StatusTooManyRequests, ErrorCodeRateLimited
	case KindServerError:
		return goerrors.CategoryExternal, http.StatusBadGateway, ErrorCodeServerError
	case KindMalformedResponse:
		return goerrors.CategoryExternal, http.StatusBadGateway, ErrorCodeMalformedResponse
	case KindProtocolViolation:
		return goerrors.CategoryExternal, http.StatusBadGateway, ErrorCodeProtocolViolation
	case KindRequestRejected:
		return goerrors.CategoryOperation, http.StatusUnprocessableEntity, ErrorCodeRequestRejected
	case KindInvalidRequest:
		return goerrors.CategoryBadInput, http.StatusBadRequest, ErrorCodeBadInput
	default:
		return goerrors.CategoryInternal, http.StatusInternalServerError, ErrorCodeInternal
	}
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryAuth:
		return ErrorCodeAuthRejected
	case goerrors.CategoryAuthz:
		return ErrorCodeInsufficientScope
	case goerrors.CategoryRateLimit:
		return ErrorCodeRateLimited
	case goerrors.CategoryExternal:
		return ErrorCodeTransportFailure
	default:
		return ErrorCodeInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DependencyError reports a handler built without the service it needs.
func DependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorCodeInternal)
}

// FieldError rejects a message before any handler or network work runs.
func FieldError(scope string, field string, message string) error {
	return goerrors.NewValidation(scope+": validation failed", goerrors.FieldError{Field: field, Message: message}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorCodeBadInput).
		WithSeverity(goerrors.SeverityError)
}
