package core

import (
	"context"
	"sort"
	"time"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

func (c *Client) observeCall(
	ctx context.Context,
	startedAt time.Time,
	endpoint Endpoint,
	attempts int,
	status int,
	err error,
) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	elapsed := c.now().Sub(startedAt)

	fields := map[string]any{
		"operation":   endpoint.Operation(),
		"api":         string(endpoint.API),
		"status":      outcome,
		"status_code": status,
		"attempts":    attempts,
		"duration_ms": elapsed.Milliseconds(),
	}
	tags := map[string]string{
		"api":    string(endpoint.API),
		"method": endpoint.Method,
		"path":   endpoint.Path,
		"status": outcome,
	}
	if err != nil {
		fields["error"] = err.Error()
		if kind := KindOf(err); kind != "" {
			fields["error_kind"] = string(kind)
			tags["error_kind"] = string(kind)
		}
	}

	c.metrics.IncCounter(ctx, "twitch.request.total", 1, tags)
	c.metrics.ObserveHistogram(ctx, "twitch.request.duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		c.log(ctx, "error", "twitch request failed", fields)
		return
	}
	c.log(ctx, "debug", "twitch request completed", fields)
}

func (c *Client) log(ctx context.Context, level string, message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
