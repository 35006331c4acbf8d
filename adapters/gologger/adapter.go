package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Logger names used across the module.
const (
	NameEngine = "twitch"
	NameAuth   = "twitch.auth"
	NamePubSub = "twitch.pubsub"
	NameJobs   = "twitch.jobs"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Loggers holds one named logger per component.
type Loggers struct {
	Provider glog.LoggerProvider
	Engine   glog.Logger
	Auth     glog.Logger
	PubSub   glog.Logger

	// JobEvents logs token job outcomes. Jobs is the same logger bridged
	// for go-job workers.
	JobEvents glog.Logger
	Jobs      job.Logger
}

// ResolveLoggers resolves the component loggers from a single provider. When
// only a logger is supplied every component shares it.
func ResolveLoggers(provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolvedProvider, engine := Resolve(NameEngine, provider, logger)
	if provider == nil && logger != nil {
		return Loggers{
			Provider:  resolvedProvider,
			Engine:    logger,
			Auth:      logger,
			PubSub:    logger,
			JobEvents: logger,
			Jobs:      ToJobLogger(logger),
		}
	}
	jobs := resolvedProvider.GetLogger(NameJobs)
	return Loggers{
		Provider:  resolvedProvider,
		Engine:    engine,
		Auth:      resolvedProvider.GetLogger(NameAuth),
		PubSub:    resolvedProvider.GetLogger(NamePubSub),
		JobEvents: jobs,
		Jobs:      ToJobLogger(jobs),
	}
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the jobs logger and returns it with its go-job equivalents.
func ResolveForJob(
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(NameJobs, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
