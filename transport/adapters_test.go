package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-twitch/core"
)

func backends() map[string]func() core.TransportAdapter {
	return map[string]func() core.TransportAdapter{
		KindREST:     func() core.TransportAdapter { return NewRESTAdapter(nil) },
		KindFastHTTP: func() core.TransportAdapter { return NewFastHTTPAdapter(nil) },
	}
}

func TestAdapters_SendMethodHeadersQueryAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if got := r.URL.Query()["user_id"]; len(got) != 2 || got[0] != "1" || got[1] != "2" {
			t.Errorf("expected repeated user_id, got %v", got)
		}
		if got := r.URL.Query().Get("after"); got != "abc" {
			t.Errorf("expected cursor, got %q", got)
		}
		if got := r.Header.Get("Client-Id"); got != "client-1" {
			t.Errorf("expected client id header, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"data":[]}` {
			t.Errorf("unexpected request body %q", body)
		}
		w.Header().Set("Ratelimit-Remaining", "799")
		w.Header().Set("Ratelimit-Reset", "1712345678")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":[{"id":"1"}]}`))
	}))
	defer server.Close()

	for kind, build := range backends() {
		t.Run(kind, func(t *testing.T) {
			adapter := build()
			if adapter.Kind() != kind {
				t.Fatalf("expected kind %q, got %q", kind, adapter.Kind())
			}
			result, err := adapter.Do(context.Background(), core.TransportRequest{
				Method:  "post",
				URL:     server.URL + "/helix/moderation/enforcements/status",
				Query:   url.Values{"user_id": {"1", "2"}, "after": {"abc"}},
				Headers: map[string]string{"client-id": "client-1"},
				Body:    []byte(`{"data":[]}`),
				Timeout: 5 * time.Second,
			})
			if err != nil {
				t.Fatalf("perform request: %v", err)
			}
			if result.StatusCode != http.StatusAccepted {
				t.Fatalf("expected accepted status, got %d", result.StatusCode)
			}
			if string(result.Body) != `{"data":[{"id":"1"}]}` {
				t.Fatalf("unexpected response body: %q", result.Body)
			}
			info := core.ParseRateLimit(result.Headers)
			if info.Remaining != 799 || info.Reset != "1712345678" {
				t.Fatalf("unexpected rate limit headers: %+v", info)
			}
			if result.Metadata["kind"] != kind {
				t.Fatalf("expected kind metadata, got %v", result.Metadata["kind"])
			}
		})
	}
}

func TestAdapters_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	for kind, build := range backends() {
		t.Run(kind, func(t *testing.T) {
			_, err := build().Do(context.Background(), core.TransportRequest{
				URL:                  server.URL,
				MaxResponseBodyBytes: 4,
			})
			if err == nil {
				t.Fatalf("expected response body limit error")
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.Category != goerrors.CategoryExternal || rich.TextCode != core.ErrorCodeTransportFailure {
				t.Fatalf("unexpected envelope: %q %q", rich.Category, rich.TextCode)
			}
			if rich.Code != http.StatusBadGateway {
				t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
			}
		})
	}
}

func TestAdapters_ReturnOnCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	for kind, build := range backends() {
		t.Run(kind, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			started := time.Now()
			_, err := build().Do(ctx, core.TransportRequest{URL: server.URL})
			if err == nil {
				t.Fatalf("expected cancellation error")
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.Code != http.StatusGatewayTimeout {
				t.Fatalf("expected cancellation envelope, got %v", err)
			}
			if elapsed := time.Since(started); elapsed > 2*time.Second {
				t.Fatalf("adapter did not honour cancellation, took %s", elapsed)
			}
		})
	}
}

func TestAdapters_RejectMissingURL(t *testing.T) {
	for kind, build := range backends() {
		t.Run(kind, func(t *testing.T) {
			_, err := build().Do(context.Background(), core.TransportRequest{})
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorCodeBadInput {
				t.Fatalf("expected bad input envelope, got %v", err)
			}
		})
	}
}
