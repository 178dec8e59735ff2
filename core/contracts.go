package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// OrganizationResolver is the read-only view over organizations.
// The bool results report whether the lookup matched.
type OrganizationResolver interface {
	GetByID(ctx context.Context, id string) (Organization, bool, error)
	SearchByIDs(ctx context.Context, ids []string) (map[string]Organization, error)
	GetRootOrgIDByChannel(ctx context.Context, channel string) (string, bool, error)
	GetIDByExternalID(ctx context.Context, externalID string, provider string) (string, bool, error)
}

type CustodianChannelProvider interface {
	CustodianOrg(ctx context.Context) (CustodianOrg, error)
}

// ReadThroughCache is refreshed on miss only; entries are never evicted by time.
type ReadThroughCache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Populate(ctx context.Context, key string, value V) error
}

type FrameworkReader interface {
	ReadFramework(ctx context.Context, frameworkID string) (FrameworkTaxonomy, bool, error)
	ListHashTagFrameworks(ctx context.Context, hashTagID string) ([]string, error)
}

type LocationResolver interface {
	Resolve(ctx context.Context, codes []string) ([]string, error)
}

type RoleValidator interface {
	ValidateRoles(ctx context.Context, roles []string) error
}

type IdentityKey string

const (
	IdentityEmail    IdentityKey = "email_fingerprint"
	IdentityPhone    IdentityKey = "phone_fingerprint"
	IdentityUsername IdentityKey = "username"
)

type UserStore interface {
	Insert(ctx context.Context, user UserAccount) (UserAccount, error)
	Update(ctx context.Context, user UserAccount) (UserAccount, error)
	Get(ctx context.Context, id string) (UserAccount, error)
	LookupIDs(ctx context.Context, key IdentityKey, value string) ([]string, error)
}

type MembershipStore interface {
	ListByUser(ctx context.Context, userID string) ([]OrganizationMembership, error)
	Create(ctx context.Context, membership OrganizationMembership) (OrganizationMembership, error)
	Update(ctx context.Context, membership OrganizationMembership) (OrganizationMembership, error)
}

type AttributeStore interface {
	Save(ctx context.Context, userID string, attributes map[string]any, operation string) (AttributeSaveResult, error)
}

type ContactCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
	Fingerprint(value string) string
}

type IDGenerator interface {
	NewID() string
}

// EventPublisher is the outbound-event port. A nil error means the event was
// enqueued, not delivered.
type EventPublisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

type IndexSyncTrigger interface {
	TriggerSync(ctx context.Context, userID string) error
}

type SearchIndex interface {
	Upsert(ctx context.Context, doc IndexDocument) error
}

type NotificationSender interface {
	Send(ctx context.Context, req NotificationRequest) error
}

type ActivitySink interface {
	Record(ctx context.Context, entry ActivityEntry) error
	List(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
}

type LifecycleEventHandler interface {
	Handle(ctx context.Context, event LifecycleEvent) error
}

type ProjectorRegistry interface {
	Register(name string, handler LifecycleEventHandler)
	Handlers() []LifecycleEventHandler
}

type LifecycleDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
}

type OutboxStore interface {
	Enqueue(ctx context.Context, event LifecycleEvent) error
	ClaimBatch(ctx context.Context, limit int) ([]LifecycleEvent, error)
	Ack(ctx context.Context, eventID string) error
	Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type StoreProvider interface {
	UserStore() UserStore
	MembershipStore() MembershipStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// AccountService is the operation surface consumed by command and query handlers.
type AccountService interface {
	CreateUser(ctx context.Context, req CreateUserRequest, reqCtx RequestContext) (CreateUserResult, error)
	UpdateUser(ctx context.Context, req UpdateUserRequest, reqCtx RequestContext) (UpdateUserResult, error)
	GetUser(ctx context.Context, userID string) (UserAccount, error)
	ListMemberships(ctx context.Context, userID string) ([]OrganizationMembership, error)
	DispatchOutbox(ctx context.Context, batchSize int) (DispatchStats, error)
}
