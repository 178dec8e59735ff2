package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

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
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	orgResolver       OrganizationResolver
	custodianProvider CustodianChannelProvider
	custodianCache    ReadThroughCache[CustodianOrg]
	frameworkReader   FrameworkReader
	frameworkSetCache ReadThroughCache[[]string]
	taxonomyCache     ReadThroughCache[FrameworkTaxonomy]
	locationResolver  LocationResolver
	roleValidator     RoleValidator
	userStore         UserStore
	membershipStore   MembershipStore
	attributeStore    AttributeStore
	contactCipher     ContactCipher
	userIDs           IDGenerator
	membershipIDs     IDGenerator
	outboxStore       OutboxStore
	projectors        ProjectorRegistry
	eventPublisher    EventPublisher
	indexTrigger      IndexSyncTrigger
	clock             func() time.Time
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

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
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

func WithOrganizationResolver(resolver OrganizationResolver) Option {
	return func(b *serviceBuilder) {
		b.orgResolver = resolver
	}
}

func WithCustodianChannelProvider(provider CustodianChannelProvider) Option {
	return func(b *serviceBuilder) {
		b.custodianProvider = provider
	}
}

func WithCustodianCache(cache ReadThroughCache[CustodianOrg]) Option {
	return func(b *serviceBuilder) {
		b.custodianCache = cache
	}
}

func WithFrameworkReader(reader FrameworkReader) Option {
	return func(b *serviceBuilder) {
		b.frameworkReader = reader
	}
}

func WithFrameworkSetCache(cache ReadThroughCache[[]string]) Option {
	return func(b *serviceBuilder) {
		b.frameworkSetCache = cache
	}
}

func WithTaxonomyCache(cache ReadThroughCache[FrameworkTaxonomy]) Option {
	return func(b *serviceBuilder) {
		b.taxonomyCache = cache
	}
}

func WithLocationResolver(resolver LocationResolver) Option {
	return func(b *serviceBuilder) {
		b.locationResolver = resolver
	}
}

func WithRoleValidator(validator RoleValidator) Option {
	return func(b *serviceBuilder) {
		b.roleValidator = validator
	}
}

func WithUserStore(store UserStore) Option {
	return func(b *serviceBuilder) {
		b.userStore = store
	}
}

func WithMembershipStore(store MembershipStore) Option {
	return func(b *serviceBuilder) {
		b.membershipStore = store
	}
}

func WithAttributeStore(store AttributeStore) Option {
	return func(b *serviceBuilder) {
		b.attributeStore = store
	}
}

func WithContactCipher(cipher ContactCipher) Option {
	return func(b *serviceBuilder) {
		b.contactCipher = cipher
	}
}

func WithUserIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.userIDs = generator
	}
}

func WithMembershipIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.membershipIDs = generator
	}
}

func WithOutboxStore(store OutboxStore) Option {
	return func(b *serviceBuilder) {
		b.outboxStore = store
	}
}

func WithProjectorRegistry(registry ProjectorRegistry) Option {
	return func(b *serviceBuilder) {
		b.projectors = registry
	}
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(b *serviceBuilder) {
		b.eventPublisher = publisher
	}
}

func WithIndexSyncTrigger(trigger IndexSyncTrigger) Option {
	return func(b *serviceBuilder) {
		b.indexTrigger = trigger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("accounts", nil, nil)
	return serviceBuilder{
		runtimeConfig:     runtime,
		loggerProvider:    loggerProvider,
		logger:            logger,
		metricsRecorder:   NopMetricsRecorder{},
		errorFactory:      goerrors.New,
		errorMapper:       defaultErrorMapper,
		configProvider:    NewCfgxConfigProvider(nil),
		optionsResolver:   GoOptionsResolver{},
		custodianCache:    NewMemoryReadThroughCache[CustodianOrg](),
		frameworkSetCache: NewMemoryReadThroughCache[[]string](),
		taxonomyCache:     NewMemoryReadThroughCache[FrameworkTaxonomy](),
		userIDs:           UUIDGenerator{},
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return accountErrorMapper(err)
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
	if includeZero || len(cfg.Normalizer.LowercaseFields) > 0 {
		layer["normalizer"] = map[string]any{
			"lowercase_fields": append([]string(nil), cfg.Normalizer.LowercaseFields...),
		}
	}
	framework := map[string]any{}
	if includeZero || len(cfg.Framework.Fields) > 0 {
		framework["fields"] = append([]string(nil), cfg.Framework.Fields...)
	}
	if includeZero || len(cfg.Framework.MandatoryFields) > 0 {
		framework["mandatory_fields"] = append([]string(nil), cfg.Framework.MandatoryFields...)
	}
	if len(framework) > 0 {
		layer["framework"] = framework
	}
	custodian := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Custodian.Channel) != "" {
		custodian["channel"] = cfg.Custodian.Channel
	}
	if includeZero || strings.TrimSpace(cfg.Custodian.RootOrgID) != "" {
		custodian["root_org_id"] = cfg.Custodian.RootOrgID
	}
	if len(custodian) > 0 {
		layer["custodian"] = custodian
	}
	outbox := map[string]any{}
	if includeZero || cfg.Outbox.BatchSize > 0 {
		outbox["batch_size"] = cfg.Outbox.BatchSize
	}
	if includeZero || cfg.Outbox.MaxAttempts > 0 {
		outbox["max_attempts"] = cfg.Outbox.MaxAttempts
	}
	if len(outbox) > 0 {
		layer["outbox"] = outbox
	}
	return layer
}
