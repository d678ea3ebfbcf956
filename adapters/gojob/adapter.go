package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-receipts/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// RetryPolicy bounds what a nack is allowed to request from the queue.
// Without it a looping check could requeue itself forever or ask for an
// arbitrarily long delay.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps nack options against the policy for the
// given delivery attempt.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	normalized := opts
	normalized.Reason = strings.TrimSpace(normalized.Reason)

	if normalized.Delay < 0 {
		normalized.Delay = 0
	}
	if p.MaxDelay > 0 && normalized.Delay > p.MaxDelay {
		normalized.Delay = p.MaxDelay
	}

	// Dead letter and requeue are mutually exclusive on the wire.
	if normalized.DeadLetter {
		normalized.Requeue = false
	}

	exhausted := p.MaxAttempts > 0 && attempt >= p.MaxAttempts
	if exhausted {
		normalized.Requeue = false
		if p.DeadLetterOnMax || normalized.DeadLetter {
			normalized.DeadLetter = true
		}
	}

	if !normalized.Requeue && !normalized.DeadLetter {
		normalized.Requeue = true
	}
	return normalized
}

// ToExecutionMessage converts an engine execution message into the
// go-job wire type. Nil stays nil so callers can pass through optional
// messages unchecked.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
	}
	out.DedupPolicy = job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy))
	return out
}

// FromExecutionMessage converts a go-job message back into the engine
// contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
	}
	out.DedupPolicy = strings.TrimSpace(string(msg.DedupPolicy))
	return out
}

// ToNackOptions maps engine nack options onto the go-job queue type.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

// FromNackOptions maps go-job nack options back onto the engine type.
func FromNackOptions(opts queue.NackOptions) core.JobNackOptions {
	return core.JobNackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

// EnqueuerAdapter lets the check scheduler arm deliveries on a go-job
// queue without the engine importing go-job directly.
type EnqueuerAdapter struct {
	inner queue.Enqueuer
}

func NewEnqueuerAdapter(inner queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{inner: inner}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.inner == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.inner.Enqueue(ctx, ToExecutionMessage(msg))
}

// DeliveryAdapter wraps one queued check delivery and applies the retry
// policy on every nack.
type DeliveryAdapter struct {
	inner  queue.Delivery
	policy RetryPolicy
}

func NewDeliveryAdapter(inner queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{inner: inner, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.inner == nil {
		return nil
	}
	return FromExecutionMessage(d.inner.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.inner == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.inner.Ack(ctx)
}

// Attempt reports the delivery attempt when the wrapped queue delivery
// exposes one. Zero means unknown and the worker counts for itself.
func (d *DeliveryAdapter) Attempt() int {
	if d == nil || d.inner == nil {
		return 0
	}
	if attempted, ok := d.inner.(interface{ Attempt() int }); ok {
		return attempted.Attempt()
	}
	return 0
}

// Nack rejects the delivery with attempt 0, so only the delay and
// dead-letter clamps apply. Retry-bound nacks go through NackForAttempt
// with the worker's count so the attempt ceiling can engage.
func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.inner == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.inner.Nack(ctx, ToNackOptions(d.policy.NormalizeAttempt(opts, attempt)))
}

// DequeuerAdapter hands the check worker policy-wrapped deliveries.
type DequeuerAdapter struct {
	inner  queue.Dequeuer
	policy RetryPolicy
}

func NewDequeuerAdapter(inner queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{inner: inner, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.inner == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.inner.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// WorkerHookAdapter mirrors go-job worker lifecycle events onto the
// engine's hook contract.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnStart)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnSuccess)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnFailure)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnRetry)
}

func (a *WorkerHookAdapter) forward(ctx context.Context, event worker.Event, call func(core.JobWorkerHook, context.Context, core.JobWorkerEvent)) {
	if a == nil || a.hook == nil {
		return
	}
	call(a.hook, ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer       = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery       = (*DeliveryAdapter)(nil)
	_ core.AttemptedDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer       = (*DequeuerAdapter)(nil)
	_ worker.Hook            = (*WorkerHookAdapter)(nil)
)
