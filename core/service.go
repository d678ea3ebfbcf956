package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service is the receipt-tracking engine: it applies lifecycle events
// to the snapshot store, arms delayed checks, and runs fire-time
// evaluation through enrichment and emission.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        HookRegistry
	store           SnapshotStore
	scheduler       CheckScheduler
	publisher       NotificationPublisher
	enricher        Enricher
	hookStore       HookConfigStore
	secretProvider  SecretProvider

	emitMaxAttempts int
	emitBackoff     time.Duration
	emitMaxBackoff  time.Duration
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("receipts", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("receipts"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = ReceiptsErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewHookRegistry()
	}
	if builder.store == nil {
		return nil, InternalError("core: snapshot store is required", nil)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	initialBackoff := time.Second
	if raw := finalConfig.Worker.InitialBackoff; raw != "" {
		if parsed, parseErr := ParseDelay(raw); parseErr == nil {
			initialBackoff = parsed
		}
	}
	maxBackoff := 5 * time.Minute
	if raw := finalConfig.Worker.MaxBackoff; raw != "" {
		if parsed, parseErr := ParseDelay(raw); parseErr == nil {
			maxBackoff = parsed
		}
	}
	maxAttempts := finalConfig.Worker.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		registry:        builder.registry,
		store:           builder.store,
		scheduler:       builder.scheduler,
		publisher:       builder.publisher,
		enricher:        builder.enricher,
		hookStore:       builder.hookStore,
		secretProvider:  builder.secretProvider,
		emitMaxAttempts: maxAttempts,
		emitBackoff:     initialBackoff,
		emitMaxBackoff:  maxBackoff,
		now: func() time.Time {
			return time.Now().UTC()
		},
		sleep: sleepContext,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Registry() HookRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

// RegisterHook adds the receipt hook to the runtime registry and, when
// a hook store is configured, persists its registration.
func (s *Service) RegisterHook(ctx context.Context, hook ReceiptHookConfig) error {
	if s == nil {
		return InternalError("core: service is nil", nil)
	}
	if err := s.registry.Register(hook); err != nil {
		return s.mapError(err)
	}
	if s.hookStore == nil {
		return nil
	}
	watched := make([]string, 0, len(hook.WatchedStatuses()))
	for _, status := range hook.WatchedStatuses().Values() {
		watched = append(watched, string(status))
	}
	_, err := s.hookStore.Save(ctx, SaveHookInput{
		Name:            hook.OriginalName(),
		Path:            hook.Path(),
		Events:          hook.Events(),
		Secret:          hook.Secret(),
		Delay:           hook.Delay(),
		WatchedStatuses: watched,
		IdentityMode:    string(hook.IdentityMode()),
	})
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper != nil {
		if mapped := mapper(err); mapped != nil {
			return mapped
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
