package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-twitch/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDValidateToken = "twitch.token.validate"
	JobIDRefreshToken  = "twitch.token.refresh"

	// ParamTokenKey names the token store key a token job operates on.
	ParamTokenKey = "token_key"
)

// RetryPolicy bounds how a failed token job is nacked.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, MaxDelay: 5 * time.Minute, DeadLetterOnMax: true}
}

// NormalizeAttempt caps the delay and stops requeueing once MaxAttempts is reached.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	out.Delay = max(out.Delay, 0)
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = out.DeadLetter || p.DeadLetterOnMax
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NewTokenJobMessage builds a validate or refresh job for one stored token.
// The idempotency key is bucketed to the hour so a scheduler ticking more
// often than hourly does not pile up duplicate validations.
func NewTokenJobMessage(jobID string, tokenKey string, at time.Time) (*core.JobExecutionMessage, error) {
	jobID = strings.TrimSpace(jobID)
	tokenKey = strings.TrimSpace(tokenKey)
	switch jobID {
	case JobIDValidateToken, JobIDRefreshToken:
	default:
		return nil, fmt.Errorf("gojob: unsupported job id %q", jobID)
	}
	if tokenKey == "" {
		return nil, fmt.Errorf("gojob: token key is required")
	}
	bucket := at.UTC().Truncate(time.Hour).Format("2006010215")
	return &core.JobExecutionMessage{
		JobID:          jobID,
		ScriptPath:     jobID,
		Parameters:     map[string]any{ParamTokenKey: tokenKey},
		IdempotencyKey: jobID + ":" + tokenKey + ":" + bucket,
		DedupPolicy:    "drop",
	}, nil
}

// TokenKey extracts the token key parameter from a token job.
func TokenKey(msg *core.JobExecutionMessage) (string, bool) {
	if msg == nil {
		return "", false
	}
	key, ok := msg.Parameters[ParamTokenKey].(string)
	key = strings.TrimSpace(key)
	return key, ok && key != ""
}

func toJobMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     maps.Clone(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromJobMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	params := maps.Clone(msg.Parameters)
	if params == nil {
		params = map[string]any{}
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, toJobMessage(msg))
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return fromJobMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	_, err := d.nack(ctx, opts, attempt)
	return err
}

func (d *DeliveryAdapter) nack(ctx context.Context, opts core.JobNackOptions, attempt int) (core.JobNackOptions, error) {
	if d == nil || d.delivery == nil {
		return opts, fmt.Errorf("gojob: delivery is not configured")
	}
	opts = d.policy.NormalizeAttempt(opts, attempt)
	return opts, d.delivery.Nack(ctx, queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	})
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// JobHandler runs one token job.
type JobHandler func(ctx context.Context, msg *core.JobExecutionMessage) error

// ProcessNext dequeues one delivery and runs handle on it. Retryable failures
// are requeued and the rest dead lettered. hook sees the same start, success,
// retry and failure events a go-job worker would report; it may be nil.
func ProcessNext(
	ctx context.Context,
	dequeuer core.JobDequeuer,
	attempt int,
	handle JobHandler,
	hook core.JobWorkerHook,
) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	if handle == nil {
		return fmt.Errorf("gojob: job handler is required")
	}
	if hook == nil {
		hook = nopHook{}
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	event := core.JobWorkerEvent{Message: delivery.Message(), Attempt: attempt, StartedAt: time.Now()}
	hook.OnStart(ctx, event)
	runErr := handle(ctx, event.Message)
	event.Duration = time.Since(event.StartedAt)
	if runErr == nil {
		if err := delivery.Ack(ctx); err != nil {
			return err
		}
		hook.OnSuccess(ctx, event)
		return nil
	}

	event.Err = runErr
	opts := core.JobNackOptions{Requeue: true, Reason: runErr.Error()}
	if !core.KindOf(runErr).Retryable() {
		opts = core.JobNackOptions{DeadLetter: true, Reason: runErr.Error()}
	}
	if counted, ok := delivery.(*DeliveryAdapter); ok {
		opts, err = counted.nack(ctx, opts, attempt)
	} else {
		err = delivery.Nack(ctx, opts)
	}
	if err != nil {
		return err
	}
	event.Delay = opts.Delay
	if opts.Requeue {
		hook.OnRetry(ctx, event)
	} else {
		hook.OnFailure(ctx, event)
	}
	return runErr
}

// NewLoggingHook reports token job events to logger.
func NewLoggingHook(logger core.Logger) core.JobWorkerHook {
	if logger == nil {
		return nopHook{}
	}
	return loggingHook{logger: logger}
}

type loggingHook struct {
	logger core.Logger
}

func (h loggingHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Debug("token job started", eventFields(event)...)
}

func (h loggingHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Info("token job completed", eventFields(event)...)
}

func (h loggingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Warn("token job requeued", eventFields(event)...)
}

func (h loggingHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Error("token job dead lettered", eventFields(event)...)
}

func eventFields(event core.JobWorkerEvent) []any {
	fields := []any{"attempt", event.Attempt}
	if event.Message != nil {
		fields = append(fields, "job_id", event.Message.JobID)
		if key, ok := TokenKey(event.Message); ok {
			fields = append(fields, "token_key", key)
		}
	}
	if event.Duration > 0 {
		fields = append(fields, "duration", event.Duration)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay)
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err)
	}
	return fields
}

type nopHook struct{}

func (nopHook) OnStart(context.Context, core.JobWorkerEvent)   {}
func (nopHook) OnSuccess(context.Context, core.JobWorkerEvent) {}
func (nopHook) OnFailure(context.Context, core.JobWorkerEvent) {}
func (nopHook) OnRetry(context.Context, core.JobWorkerEvent)   {}

// WorkerHookAdapter lets a go-job worker report into a core.JobWorkerHook.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   fromJobMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
)
