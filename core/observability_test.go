package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for key, value := range tags {
		out[key] = value
	}
	return out
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func newObservedClient(t *testing.T, transport *stubTransport, metrics MetricsRecorder, logger *captureLogger) *Client {
	t.Helper()
	clock := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	client, err := NewClient(transport,
		staticCredentials{cred: Credential{AccessToken: "tok", ClientID: "cid", Scopes: []string{"user:read:email"}}},
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
		WithNow(func() time.Time {
			clock = clock.Add(25 * time.Millisecond)
			return clock
		}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestExecuteObservability_Success(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	client := newObservedClient(t, &stubTransport{}, metrics, logger)

	if _, err := Execute(context.Background(), client, listRequest{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !hasCounter(metrics.counters, "twitch.request.total", "success") {
		t.Fatalf("expected twitch.request.total success counter")
	}
	if !hasHistogram(metrics.histograms, "twitch.request.duration_ms", "success") {
		t.Fatalf("expected twitch.request.duration_ms histogram")
	}
	records := logger.snapshot()
	if len(records) != 1 || records[0].level != "debug" || records[0].msg != "twitch request completed" {
		t.Fatalf("unexpected log records: %+v", records)
	}
	if records[0].fields["operation"] != "GET helix/users" || records[0].fields["duration_ms"] != int64(25) {
		t.Fatalf("unexpected log fields: %+v", records[0].fields)
	}
}

func TestExecuteObservability_Failure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	transport := &stubTransport{responses: []TransportResponse{{StatusCode: 502}}}
	client := newObservedClient(t, transport, metrics, logger)

	if _, err := Execute(context.Background(), client, listRequest{}); err == nil {
		t.Fatalf("expected server error")
	}
	if !hasCounter(metrics.counters, "twitch.request.total", "failure") {
		t.Fatalf("expected failure counter")
	}
	for _, item := range metrics.counters {
		if item.tags["error_kind"] != string(KindServerError) {
			t.Fatalf("expected server_error tag, got %+v", item.tags)
		}
	}
	records := logger.snapshot()
	last := records[len(records)-1]
	if last.level != "error" || last.fields["error_kind"] != string(KindServerError) || last.fields["status_code"] != 502 {
		t.Fatalf("unexpected failure log: %+v", last)
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}
