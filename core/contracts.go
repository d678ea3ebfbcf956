package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// SnapshotStore owns Message Snapshot lifetime, keyed by
// (hookName, messageID). Implementations must be safe for concurrent
// access to distinct keys, and Take must be atomic per key: a
// redelivered check's second Take finds nothing.
type SnapshotStore interface {
	// Save persists the snapshot unconditionally (Absent -> Tracked).
	Save(ctx context.Context, hookName string, messageID string, snapshot MessageSnapshot) error
	// Update overwrites an existing snapshot and reports whether one
	// was present; delivered/read events never resurrect deleted state.
	Update(ctx context.Context, hookName string, messageID string, snapshot MessageSnapshot) (bool, error)
	// Take atomically reads and removes the snapshot. Absence is a
	// normal outcome, reported via ok=false with a nil error.
	Take(ctx context.Context, hookName string, messageID string) (MessageSnapshot, bool, error)
	Delete(ctx context.Context, hookName string, messageID string) error
}

// CheckScheduler arms the single delayed re-check for a message. The
// delay is realized by scheduler re-invocation, never by blocking a
// worker for the window.
type CheckScheduler interface {
	Arm(ctx context.Context, hookName string, messageID string, delay time.Duration) error
}

// NotificationPublisher hands a consolidated job to the downstream
// work queue. Implementations report transient failures; retry policy
// belongs to the emitter.
type NotificationPublisher interface {
	Publish(ctx context.Context, job NotificationJob) error
}

// IdentityResolver is the custom-mode per-id resolution contract. A
// failed lookup returns an error for that id only; the enricher
// captures it as a nil record.
type IdentityResolver func(ctx context.Context, userID string) (*IdentityRecord, error)

// DirectoryClient is the builtin-mode identity lookup collaborator.
type DirectoryClient interface {
	Lookup(ctx context.Context, userID string) (IdentityRecord, error)
}

// Enricher resolves identity records for the sender and the filtered
// recipients before emission.
type Enricher interface {
	Enrich(ctx context.Context, hook ReceiptHookConfig, senderID string, recipientIDs []string) map[string]*IdentityRecord
}

// SecretProvider encrypts hook shared secrets at rest.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

// AttemptedDelivery is an optional JobDelivery upgrade exposing the
// queue runtime's redelivery count, used to bound check retries.
type AttemptedDelivery interface {
	JobDelivery
	Attempt() int
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// InboundRequest is the transport-agnostic shape of one webhook
// delivery handed to the processor by whatever HTTP layer hosts it.
type InboundRequest struct {
	HookName string
	Method   string
	Path     string
	Headers  map[string]string
	Query    map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Body       string
	Metadata   map[string]any
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string)         {}
func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// HookConfigStore persists hook registrations; secrets are encrypted
// at rest through a SecretProvider.
type HookConfigStore interface {
	Save(ctx context.Context, in SaveHookInput) (StoredHook, error)
	Get(ctx context.Context, name string) (StoredHook, error)
	List(ctx context.Context) ([]StoredHook, error)
}

type SaveHookInput struct {
	Name            string
	Path            string
	Events          []string
	Secret          string
	Delay           time.Duration
	WatchedStatuses []string
	IdentityMode    string
}

type StoredHook struct {
	ID              string
	Name            string
	Path            string
	Events          []string
	Secret          string
	Delay           time.Duration
	WatchedStatuses []string
	IdentityMode    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
