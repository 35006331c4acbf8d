package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve(NameEngine, provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve(NameEngine, nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve(NameEngine, nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob(provider, nil)
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := jobProvider.GetLogger(NameJobs)
	bridged.Info("hello", "k", "v")

	captured := providerLogger.lastInfo
	if captured.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "k" || captured.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestResolveLoggersNamesComponents(t *testing.T) {
	provider := &namingProvider{}
	loggers := ResolveLoggers(provider, nil)
	if loggers.Engine == nil || loggers.Auth == nil || loggers.PubSub == nil || loggers.JobEvents == nil || loggers.Jobs == nil {
		t.Fatalf("expected every component logger to resolve")
	}
	want := map[string]bool{NameEngine: true, NameAuth: true, NamePubSub: true, NameJobs: true}
	for _, name := range provider.names {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Fatalf("expected all component names requested, missing %v", want)
	}
}

func TestResolveLoggersSharesDirectLogger(t *testing.T) {
	shared := &capturingLogger{id: "shared"}
	loggers := ResolveLoggers(nil, shared)
	if loggers.PubSub.(*capturingLogger) != shared {
		t.Fatalf("expected pubsub logger to reuse the direct logger")
	}
	if loggers.JobEvents.(*capturingLogger) != shared {
		t.Fatalf("expected job events logger to reuse the direct logger")
	}
	loggers.Jobs.Info("job ran", "job_id", "twitch.token.validate")
	if shared.lastInfo.msg != "job ran" {
		t.Fatalf("expected jobs logger to write to the direct logger, got %q", shared.lastInfo.msg)
	}
}

type namingProvider struct {
	names []string
}

func (p *namingProvider) GetLogger(name string) glog.Logger {
	p.names = append(p.names, name)
	return &capturingLogger{id: name}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
