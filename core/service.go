package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	userStore         UserStore
	membershipStore   MembershipStore
	outboxStore       OutboxStore
	eventPublisher    EventPublisher
	projectors        ProjectorRegistry
	dispatcher        LifecycleDispatcher

	normalizer  RequestNormalizer
	validator   *requestValidator
	flags       FlagEncoder
	persistence *PersistenceCoordinator
	audit       *AuditEmitter
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	UserStore         UserStore
	MembershipStore   MembershipStore
	OutboxStore       OutboxStore
	EventPublisher    EventPublisher
	Projectors        ProjectorRegistry
	Dispatcher        LifecycleDispatcher
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("accounts", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("accounts"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.userIDs == nil {
		builder.userIDs = UUIDGenerator{}
	}
	if builder.membershipIDs == nil {
		builder.membershipIDs = UUIDGenerator{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
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

	if (builder.userStore == nil || builder.membershipStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.applyStores(stores)
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.applyStores(stores)
		}
	}
	if builder.userStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: user store is required"))
	}
	if builder.contactCipher == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: contact cipher is required"))
	}

	if builder.eventPublisher == nil && builder.outboxStore != nil {
		builder.eventPublisher = NewOutboxEventPublisher(builder.outboxStore, UUIDGenerator{})
	}
	if builder.eventPublisher == nil {
		builder.eventPublisher = nopEventPublisher{}
	}
	if builder.indexTrigger == nil && builder.outboxStore != nil {
		builder.indexTrigger = EventIndexTrigger{Publisher: builder.eventPublisher}
	}
	if builder.projectors == nil {
		builder.projectors = NewLifecycleProjectorRegistry()
	}
	var dispatcher LifecycleDispatcher
	if builder.outboxStore != nil {
		outboxDispatcher, dispatchErr := NewOutboxDispatcher(
			builder.outboxStore,
			builder.projectors,
			OutboxDispatcherConfigFrom(finalConfig.Outbox),
			logger,
		)
		if dispatchErr != nil {
			return nil, mapBuildError(builder.errorMapper, dispatchErr)
		}
		dispatcher = outboxDispatcher
	}

	synchronizer := NewOrgMembershipSynchronizer(
		builder.orgResolver,
		builder.membershipStore,
		builder.membershipIDs,
		builder.clock,
	)
	validator := &requestValidator{
		config: finalConfig,
		schema: newSchemaValidator(),
		orgs:   builder.orgResolver,
		custodian: &custodianLookup{
			provider: builder.custodianProvider,
			cache:    builder.custodianCache,
			orgs:     builder.orgResolver,
			fallback: finalConfig.Custodian,
		},
		frameworks: &frameworkLookup{
			config:   finalConfig.Framework,
			reader:   builder.frameworkReader,
			orgs:     builder.orgResolver,
			sets:     builder.frameworkSetCache,
			taxonomy: builder.taxonomyCache,
		},
		locations: builder.locationResolver,
		roles:     builder.roleValidator,
		users:     builder.userStore,
		cipher:    builder.contactCipher,
		sync:      synchronizer,
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		userStore:         builder.userStore,
		membershipStore:   builder.membershipStore,
		outboxStore:       builder.outboxStore,
		eventPublisher:    builder.eventPublisher,
		projectors:        builder.projectors,
		dispatcher:        dispatcher,
		normalizer:        NewRequestNormalizer(finalConfig),
		validator:         validator,
		persistence: &PersistenceCoordinator{
			users:         builder.userStore,
			memberships:   builder.membershipStore,
			sync:          synchronizer,
			attributes:    builder.attributeStore,
			cipher:        builder.contactCipher,
			userIDs:       builder.userIDs,
			membershipIDs: builder.membershipIDs,
			index:         builder.indexTrigger,
			publisher:     builder.eventPublisher,
			logger:        logger,
			now:           builder.clock,
		},
		audit: NewAuditEmitter(builder.eventPublisher, logger, builder.clock),
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		UserStore:         s.userStore,
		MembershipStore:   s.membershipStore,
		OutboxStore:       s.outboxStore,
		EventPublisher:    s.eventPublisher,
		Projectors:        s.projectors,
		Dispatcher:        s.dispatcher,
	}
}

// RegisterProjector adds a named lifecycle projector to the outbox dispatcher.
func (s *Service) RegisterProjector(name string, handler LifecycleEventHandler) {
	if s == nil || s.projectors == nil {
		return
	}
	s.projectors.Register(name, handler)
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest, reqCtx RequestContext) (result CreateUserResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"version":        reqCtx.Version,
		"caller_id":      reqCtx.CallerID,
		"signup_type":    reqCtx.SignupType,
		"request_source": reqCtx.RequestSource,
	}
	defer func() {
		if result.UserID != "" {
			fields["user_id"] = result.UserID
		}
		s.observeOperation(ctx, startedAt, "create_user", err, fields)
	}()

	req = s.normalizer.NormalizeCreate(req)
	state := &validationState{operation: OperationCreate, reqCtx: reqCtx, create: &req}
	if err = s.validator.createPipeline().Run(ctx, state); err != nil {
		err = s.mapError(err)
		return CreateUserResult{}, err
	}
	custodian, err := s.validator.custodian.Get(ctx)
	if err != nil {
		err = s.mapError(err)
		return CreateUserResult{}, err
	}
	flags := s.flags.ForCreate(req, state.rootOrgID, custodian)

	outcome, err := s.persistence.Create(ctx, req, state, flags, strings.TrimSpace(reqCtx.CallerID))
	if outcome.written {
		s.audit.Emit(ctx, OperationCreate, outcome.account, reqCtx)
		s.persistence.NotifyOnboarding(ctx, outcome.account, reqCtx)
	}
	if err != nil {
		err = s.mapError(err)
		return CreateUserResult{}, err
	}
	return CreateUserResult{UserID: outcome.account.ID, Errors: outcome.errors}, nil
}

func (s *Service) UpdateUser(ctx context.Context, req UpdateUserRequest, reqCtx RequestContext) (result UpdateUserResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":      strings.TrimSpace(req.UserID),
		"private":      reqCtx.Private,
		"requested_by": reqCtx.RequestedBy,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_user", err, fields)
	}()

	req = s.normalizer.NormalizeUpdate(req)
	state := &validationState{operation: OperationUpdate, reqCtx: reqCtx, update: &req}
	if err = s.validator.updatePipeline().Run(ctx, state); err != nil {
		err = s.mapError(err)
		return UpdateUserResult{}, err
	}
	custodian, err := s.validator.custodian.Get(ctx)
	if err != nil {
		err = s.mapError(err)
		return UpdateUserResult{}, err
	}
	flags := s.flags.ForUpdate(req, state.stored, custodian)

	outcome, err := s.persistence.Update(ctx, req, state, flags, updateActor(req, reqCtx))
	if outcome.written {
		s.audit.Emit(ctx, OperationUpdate, outcome.account, reqCtx)
	}
	if err != nil {
		err = s.mapError(err)
		return UpdateUserResult{}, err
	}
	return UpdateUserResult{
		UserID:   outcome.account.ID,
		Response: ResponseSuccess,
		Errors:   outcome.errors,
	}, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (account UserAccount, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "get_user", err, map[string]any{"user_id": userID})
	}()
	userID = strings.TrimSpace(userID)
	if userID == "" {
		err = s.mapError(newInvalidRequestData("user id is required", schemaField("user_id", "required")))
		return UserAccount{}, err
	}
	account, err = s.userStore.Get(ctx, userID)
	if err != nil {
		err = s.mapError(err)
		return UserAccount{}, err
	}
	return account, nil
}

func (s *Service) ListMemberships(ctx context.Context, userID string) (memberships []OrganizationMembership, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "list_memberships", err, map[string]any{"user_id": userID})
	}()
	userID = strings.TrimSpace(userID)
	if userID == "" {
		err = s.mapError(newInvalidRequestData("user id is required", schemaField("user_id", "required")))
		return nil, err
	}
	if s.membershipStore == nil {
		err = s.mapError(fmt.Errorf("core: membership store is not configured"))
		return nil, err
	}
	memberships, err = s.membershipStore.ListByUser(ctx, userID)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return memberships, nil
}

func (s *Service) DispatchOutbox(ctx context.Context, batchSize int) (stats DispatchStats, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"batch_size": batchSize}
	defer func() {
		fields["claimed"] = stats.Claimed
		fields["delivered"] = stats.Delivered
		fields["retried"] = stats.Retried
		fields["failed"] = stats.Failed
		s.observeOperation(ctx, startedAt, "dispatch_outbox", err, fields)
	}()
	if s.dispatcher == nil {
		err = s.mapError(fmt.Errorf("core: outbox dispatcher is not configured"))
		return DispatchStats{}, err
	}
	stats, err = s.dispatcher.DispatchPending(ctx, batchSize)
	if err != nil {
		err = s.mapError(err)
		return stats, err
	}
	return stats, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func updateActor(req UpdateUserRequest, reqCtx RequestContext) string {
	if actor := strings.TrimSpace(reqCtx.RequestedBy); actor != "" {
		return actor
	}
	if actor := strings.TrimSpace(reqCtx.CallerID); actor != "" {
		return actor
	}
	return strings.TrimSpace(req.UserID)
}

func (b *serviceBuilder) applyStores(stores StoreProvider) {
	if stores == nil {
		return
	}
	if b.userStore == nil {
		b.userStore = stores.UserStore()
	}
	if b.membershipStore == nil {
		b.membershipStore = stores.MembershipStore()
	}
	if b.outboxStore == nil {
		if provider, ok := stores.(interface{ OutboxStore() OutboxStore }); ok {
			b.outboxStore = provider.OutboxStore()
		}
	}
	if b.attributeStore == nil {
		if provider, ok := stores.(interface{ AttributeStore() AttributeStore }); ok {
			b.attributeStore = provider.AttributeStore()
		}
	}
	if b.orgResolver == nil {
		if provider, ok := stores.(interface{ OrganizationResolver() OrganizationResolver }); ok {
			b.orgResolver = provider.OrganizationResolver()
		}
	}
	if b.frameworkReader == nil {
		if provider, ok := stores.(interface{ FrameworkReader() FrameworkReader }); ok {
			b.frameworkReader = provider.FrameworkReader()
		}
	}
	if b.locationResolver == nil {
		if provider, ok := stores.(interface{ LocationResolver() LocationResolver }); ok {
			b.locationResolver = provider.LocationResolver()
		}
	}
	if b.roleValidator == nil {
		if provider, ok := stores.(interface{ RoleValidator() RoleValidator }); ok {
			b.roleValidator = provider.RoleValidator()
		}
	}
}
