package accounts

import "github.com/goliatone/go-accounts/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type CreateUserRequest = core.CreateUserRequest
type UpdateUserRequest = core.UpdateUserRequest
type RequestContext = core.RequestContext
type CreateUserResult = core.CreateUserResult
type UpdateUserResult = core.UpdateUserResult
type UserAccount = core.UserAccount
type OrganizationMembership = core.OrganizationMembership
type DispatchStats = core.DispatchStats
type ErrorKind = core.ErrorKind

var (
	WithLogger                   = core.WithLogger
	WithLoggerProvider           = core.WithLoggerProvider
	WithMetricsRecorder          = core.WithMetricsRecorder
	WithErrorFactory             = core.WithErrorFactory
	WithErrorMapper              = core.WithErrorMapper
	WithPersistenceClient        = core.WithPersistenceClient
	WithRepositoryFactory        = core.WithRepositoryFactory
	WithConfigProvider           = core.WithConfigProvider
	WithOptionsResolver          = core.WithOptionsResolver
	WithOrganizationResolver     = core.WithOrganizationResolver
	WithCustodianChannelProvider = core.WithCustodianChannelProvider
	WithCustodianCache           = core.WithCustodianCache
	WithFrameworkReader          = core.WithFrameworkReader
	WithFrameworkSetCache        = core.WithFrameworkSetCache
	WithTaxonomyCache            = core.WithTaxonomyCache
	WithLocationResolver         = core.WithLocationResolver
	WithRoleValidator            = core.WithRoleValidator
	WithUserStore                = core.WithUserStore
	WithMembershipStore          = core.WithMembershipStore
	WithAttributeStore           = core.WithAttributeStore
	WithContactCipher            = core.WithContactCipher
	WithUserIDGenerator          = core.WithUserIDGenerator
	WithMembershipIDGenerator    = core.WithMembershipIDGenerator
	WithOutboxStore              = core.WithOutboxStore
	WithProjectorRegistry        = core.WithProjectorRegistry
	WithEventPublisher           = core.WithEventPublisher
	WithIndexSyncTrigger         = core.WithIndexSyncTrigger
	WithClock                    = core.WithClock
)

var (
	ErrorKindOf     = core.ErrorKindOf
	ErrorDetails    = core.ErrorDetails
	ErrUserNotFound = core.ErrUserNotFound
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
