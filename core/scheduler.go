package core

import (
	"context"
	"strings"
	"time"
)

const (
	// CheckJobID is the task type for delayed receipt checks.
	// Notifications carry no fixed task type: they publish under the
	// name of the hook that produced them.
	CheckJobID = "receipts.check"

	paramHookName  = "hook_name"
	paramMessageID = "message_id"
	paramFireAt    = "fire_at"
	paramJob       = "job"
)

// QueueCheckScheduler arms delayed checks on the shared job queue. The
// idempotency key is the (hook, message) pair, so a repeated sent event
// for the same message folds into the already-armed check.
type QueueCheckScheduler struct {
	enqueuer JobEnqueuer
	now      func() time.Time
}

func NewQueueCheckScheduler(enqueuer JobEnqueuer) *QueueCheckScheduler {
	return &QueueCheckScheduler{
		enqueuer: enqueuer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

var _ CheckScheduler = (*QueueCheckScheduler)(nil)

func (s *QueueCheckScheduler) Arm(ctx context.Context, hookName string, messageID string, delay time.Duration) error {
	if s == nil || s.enqueuer == nil {
		return InternalError("core: check scheduler has no enqueuer", nil)
	}
	hookName = strings.TrimSpace(hookName)
	messageID = strings.TrimSpace(messageID)
	if hookName == "" || messageID == "" {
		return BadInputError("core: hook name and message id are required", nil)
	}
	if delay < 0 {
		delay = 0
	}
	fireAt := s.now().Add(delay)
	return s.enqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID: CheckJobID,
		Parameters: map[string]any{
			paramHookName:  hookName,
			paramMessageID: messageID,
			paramFireAt:    fireAt.Format(time.RFC3339Nano),
		},
		IdempotencyKey: checkIdempotencyKey(hookName, messageID),
		DedupPolicy:    "ignore",
	})
}

func checkIdempotencyKey(hookName string, messageID string) string {
	return hookName + "::" + messageID
}

// QueuePublisher emits notification jobs through the same enqueuer the
// checks ride on. Each notification is published under the task name of
// the hook that produced it, so consumers subscribe per hook.
type QueuePublisher struct {
	enqueuer JobEnqueuer
}

func NewQueuePublisher(enqueuer JobEnqueuer) *QueuePublisher {
	return &QueuePublisher{enqueuer: enqueuer}
}

var _ NotificationPublisher = (*QueuePublisher)(nil)

func (p *QueuePublisher) Publish(ctx context.Context, job NotificationJob) error {
	if p == nil || p.enqueuer == nil {
		return InternalError("core: notification publisher has no enqueuer", nil)
	}
	hookName := strings.TrimSpace(job.Hook)
	if hookName == "" {
		return BadInputError("core: notification job without a hook name", nil)
	}
	return p.enqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID: hookName,
		Parameters: map[string]any{
			paramHookName:  job.Hook,
			paramMessageID: job.Message.ID,
			paramJob:       job,
		},
		IdempotencyKey: checkIdempotencyKey(job.Hook, job.Message.ID) + "::notification",
	})
}
