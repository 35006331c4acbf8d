package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestError_MatchesKindThroughWrapping(t *testing.T) {
	base := WrapError(KindTransportFailure, "GET helix/users", "exchange failed", context.DeadlineExceeded)
	wrapped := fmt.Errorf("outer: %w", base)

	if !stderrors.Is(wrapped, KindTransportFailure) {
		t.Fatalf("expected kind match through wrapping")
	}
	if stderrors.Is(wrapped, KindServerError) {
		t.Fatalf("unexpected match on a different kind")
	}
	if !stderrors.Is(wrapped, context.DeadlineExceeded) {
		t.Fatalf("expected cause to stay matchable")
	}
	if KindOf(wrapped) != KindTransportFailure {
		t.Fatalf("expected KindOf transport failure, got %q", KindOf(wrapped))
	}
	if KindOf(stderrors.New("plain")) != "" {
		t.Fatalf("expected empty kind for plain errors")
	}
}

func TestError_ToServiceErrorAssignsStableCodes(t *testing.T) {
	info := RateLimitInfo{Reset: "1712345678", HasRemaining: true}
	rateLimited := &Error{Kind: KindRateLimited, Op: "GET helix/streams", StatusCode: 429, RateLimit: &info}

	mapped := rateLimited.ToServiceError()
	if mapped.TextCode != ErrorCodeRateLimited {
		t.Fatalf("expected rate limited text code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusTooManyRequests || mapped.Category != goerrors.CategoryRateLimit {
		t.Fatalf("unexpected envelope: code=%d category=%q", mapped.Code, mapped.Category)
	}
	if mapped.Metadata["ratelimit_reset"] != "1712345678" {
		t.Fatalf("expected verbatim reset in metadata, got %#v", mapped.Metadata["ratelimit_reset"])
	}
	if !strings.Contains(rateLimited.Error(), "reset=1712345678") {
		t.Fatalf("expected reset in message, got %q", rateLimited.Error())
	}

	scope := &Error{Kind: KindInsufficientScope, MissingScopes: []string{"moderation:read"}}
	mapped = MapError(fmt.Errorf("wrapped: %w", scope))
	if mapped.TextCode != ErrorCodeInsufficientScope || mapped.Category != goerrors.CategoryAuthz {
		t.Fatalf("unexpected scope mapping: %q %q", mapped.TextCode, mapped.Category)
	}
}

func TestMapError_FallsBackToEnvelope(t *testing.T) {
	mapped := MapError(stderrors.New("unexpected"))
	if mapped == nil || mapped.TextCode == "" || mapped.Code == 0 {
		t.Fatalf("expected populated envelope, got %#v", mapped)
	}

	rich := goerrors.New("bad input", goerrors.CategoryBadInput)
	mapped = MapError(rich)
	if mapped.TextCode != ErrorCodeBadInput || mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected bad input defaults, got %q %d", mapped.TextCode, mapped.Code)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestKindRetryable(t *testing.T) {
	retryable := map[Kind]bool{
		KindTransportFailure:       true,
		KindRateLimited:            true,
		KindServerError:            true,
		KindAuthenticationRejected: false,
		KindInsufficientScope:      false,
		KindMalformedResponse:      false,
		KindRequestRejected:        false,
		KindInvalidRequest:         false,
		Kind(""):                   false,
	}
	for kind, want := range retryable {
		if got := kind.Retryable(); got != want {
			t.Fatalf("kind %q: expected retryable=%v, got %v", kind, want, got)
		}
	}
}

func TestHandlerErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		code     int
		textCode string
	}{
		{"dependency", DependencyError("query: chatters reader is required"), goerrors.CategoryInternal, http.StatusInternalServerError, ErrorCodeInternal},
		{"field", FieldError("command", "topic", "topic is required"), goerrors.CategoryValidation, http.StatusBadRequest, ErrorCodeBadInput},
	}
	for _, tc := range cases {
		var rich *goerrors.Error
		if !goerrors.As(tc.err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", tc.name, tc.err)
		}
		if rich.Category != tc.category || rich.Code != tc.code || rich.TextCode != tc.textCode {
			t.Fatalf("%s: unexpected envelope %s/%d/%s", tc.name, rich.Category, rich.Code, rich.TextCode)
		}
	}
}
