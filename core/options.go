package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
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
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithHookRegistry(registry HookRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithSnapshotStore(store SnapshotStore) Option {
	return func(b *serviceBuilder) {
		b.store = store
	}
}

func WithCheckScheduler(scheduler CheckScheduler) Option {
	return func(b *serviceBuilder) {
		b.scheduler = scheduler
	}
}

func WithNotificationPublisher(publisher NotificationPublisher) Option {
	return func(b *serviceBuilder) {
		b.publisher = publisher
	}
}

func WithEnricher(enricher Enricher) Option {
	return func(b *serviceBuilder) {
		b.enricher = enricher
	}
}

func WithHookConfigStore(store HookConfigStore) Option {
	return func(b *serviceBuilder) {
		b.hookStore = store
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("receipts", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     ReceiptsErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		registry:        NewHookRegistry(),
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	receipts := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Receipts.Delay) != "" {
		receipts["delay"] = cfg.Receipts.Delay
	}
	if includeZero || len(cfg.Receipts.WatchedStatuses) > 0 {
		receipts["watched_statuses"] = append([]string(nil), cfg.Receipts.WatchedStatuses...)
	}
	if includeZero || strings.TrimSpace(cfg.Receipts.IdentityMode) != "" {
		receipts["identity_mode"] = cfg.Receipts.IdentityMode
	}
	if len(receipts) > 0 {
		layer["receipts"] = receipts
	}

	worker := map[string]any{}
	if includeZero || cfg.Worker.Concurrency > 0 {
		worker["concurrency"] = cfg.Worker.Concurrency
	}
	if includeZero || cfg.Worker.MaxAttempts > 0 {
		worker["max_attempts"] = cfg.Worker.MaxAttempts
	}
	if includeZero || strings.TrimSpace(cfg.Worker.InitialBackoff) != "" {
		worker["initial_backoff"] = cfg.Worker.InitialBackoff
	}
	if includeZero || strings.TrimSpace(cfg.Worker.MaxBackoff) != "" {
		worker["max_backoff"] = cfg.Worker.MaxBackoff
	}
	if len(worker) > 0 {
		layer["worker"] = worker
	}
	return layer
}
