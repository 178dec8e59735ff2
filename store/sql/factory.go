package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-accounts/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	userStore         *UserStore
	membershipStore   *MembershipStore
	attributeStore    *AttributeStore
	outboxStore       *OutboxStore
	activityStore     *ActivityStore
	organisationStore *OrganisationStore
	frameworkStore    *FrameworkStore
	locationStore     *LocationStore
	roleStore         *RoleStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.userStore != nil && f.membershipStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) UserStore() core.UserStore {
	if f == nil {
		return nil
	}
	return f.userStore
}

func (f *RepositoryFactory) MembershipStore() core.MembershipStore {
	if f == nil {
		return nil
	}
	return f.membershipStore
}

func (f *RepositoryFactory) AttributeStore() core.AttributeStore {
	if f == nil {
		return nil
	}
	return f.attributeStore
}

func (f *RepositoryFactory) OutboxStore() core.OutboxStore {
	if f == nil {
		return nil
	}
	return f.outboxStore
}

func (f *RepositoryFactory) OrganizationResolver() core.OrganizationResolver {
	if f == nil {
		return nil
	}
	return f.organisationStore
}

func (f *RepositoryFactory) FrameworkReader() core.FrameworkReader {
	if f == nil {
		return nil
	}
	return f.frameworkStore
}

func (f *RepositoryFactory) LocationResolver() core.LocationResolver {
	if f == nil {
		return nil
	}
	return f.locationStore
}

func (f *RepositoryFactory) RoleValidator() core.RoleValidator {
	if f == nil {
		return nil
	}
	return f.roleStore
}

func (f *RepositoryFactory) ActivityStore() *ActivityStore {
	if f == nil {
		return nil
	}
	return f.activityStore
}

func (f *RepositoryFactory) initStores() error {
	userStore, err := NewUserStore(f.db)
	if err != nil {
		return err
	}
	f.userStore = userStore
	membershipStore, err := NewMembershipStore(f.db)
	if err != nil {
		return err
	}
	f.membershipStore = membershipStore
	attributeStore, err := NewAttributeStore(f.db)
	if err != nil {
		return err
	}
	f.attributeStore = attributeStore
	outboxStore, err := NewOutboxStore(f.db)
	if err != nil {
		return err
	}
	f.outboxStore = outboxStore
	activityStore, err := NewActivityStore(f.db)
	if err != nil {
		return err
	}
	f.activityStore = activityStore
	organisationStore, err := NewOrganisationStore(f.db)
	if err != nil {
		return err
	}
	f.organisationStore = organisationStore
	frameworkStore, err := NewFrameworkStore(f.db)
	if err != nil {
		return err
	}
	f.frameworkStore = frameworkStore
	locationStore, err := NewLocationStore(f.db)
	if err != nil {
		return err
	}
	f.locationStore = locationStore
	roleStore, err := NewRoleStore(f.db)
	if err != nil {
		return err
	}
	f.roleStore = roleStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
