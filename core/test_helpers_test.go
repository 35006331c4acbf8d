package core

import (
	"context"
	"sync"
)

type stubTransport struct {
	mu        sync.Mutex
	responses []TransportResponse
	requests  []TransportRequest
}

func (s *stubTransport) Kind() string { return "stub" }

func (s *stubTransport) Do(_ context.Context, req TransportRequest) (TransportResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return TransportResponse{StatusCode: 200, Body: []byte(`{"data":[]}`)}, nil
	}
	res := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return res, nil
}

type staticCredentials struct {
	cred Credential
}

func (s staticCredentials) Current(context.Context) (Credential, error) { return s.cred, nil }

func (staticCredentials) Invalidate(context.Context, Invalidation) {}

type listRequest struct{}

func (listRequest) Descriptor() Descriptor[[]map[string]any] {
	return Descriptor[[]map[string]any]{Path: "users", Scopes: []string{"user:read:email"}}
}

func (listRequest) Params() Params { return Params{} }

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
