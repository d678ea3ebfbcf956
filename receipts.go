package receipts

import "github.com/goliatone/go-receipts/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type HookConfig = core.HookConfig
type ReceiptHookConfig = core.ReceiptHookConfig
type ReceiptOptions = core.ReceiptOptions

type Event = core.Event
type EventType = core.EventType
type MessageSnapshot = core.MessageSnapshot
type NotificationJob = core.NotificationJob
type IdentityRecord = core.IdentityRecord
type IdentityResolver = core.IdentityResolver

type SnapshotStore = core.SnapshotStore
type CheckScheduler = core.CheckScheduler
type NotificationPublisher = core.NotificationPublisher
type HookRegistry = core.HookRegistry

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorMapper           = core.WithErrorMapper
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithHookRegistry          = core.WithHookRegistry
	WithSnapshotStore         = core.WithSnapshotStore
	WithCheckScheduler        = core.WithCheckScheduler
	WithNotificationPublisher = core.WithNotificationPublisher
	WithEnricher              = core.WithEnricher
	WithHookConfigStore       = core.WithHookConfigStore
	WithSecretProvider        = core.WithSecretProvider
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// ParseDelay normalizes a configured delay expression (numeric
// milliseconds, Go duration syntax, or "<n> <unit>" words) to a
// duration at configuration time.
var ParseDelay = core.ParseDelay
