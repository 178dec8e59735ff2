package accounts

import (
	"fmt"
	"reflect"

	accountscommand "github.com/goliatone/go-accounts/command"
	"github.com/goliatone/go-accounts/core"
	accountsquery "github.com/goliatone/go-accounts/query"
)

type CommandQueryService interface {
	accountscommand.MutatingService
	accountsquery.AccountReader
}

type Commands struct {
	CreateUser     *accountscommand.CreateUserCommand
	UpdateUser     *accountscommand.UpdateUserCommand
	DispatchOutbox *accountscommand.DispatchOutboxCommand
}

type Queries struct {
	GetUser         *accountsquery.GetUserQuery
	ListMemberships *accountsquery.ListMembershipsQuery
	ListActivity    *accountsquery.ListActivityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader accountsquery.ActivityReader
}

func WithActivityReader(reader accountsquery.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("accounts: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateUser:     accountscommand.NewCreateUserCommand(service),
		UpdateUser:     accountscommand.NewUpdateUserCommand(service),
		DispatchOutbox: accountscommand.NewDispatchOutboxCommand(service),
	}
	facade.queries = Queries{
		GetUser:         accountsquery.NewGetUserQuery(service),
		ListMemberships: accountsquery.NewListMembershipsQuery(service),
		ListActivity:    accountsquery.NewListActivityQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveActivityReader looks for an ActivityStore accessor on the service's
// repository factory.
func resolveActivityReader(service CommandQueryService) accountsquery.ActivityReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(accountsquery.ActivityReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if deps.RepositoryFactory == nil {
		return nil
	}

	factoryValue := reflect.ValueOf(deps.RepositoryFactory)
	if !factoryValue.IsValid() {
		return nil
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return nil
	}
	method := factoryValue.MethodByName("ActivityStore")
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil
	}

	results, ok := safeReflectCall(method)
	if !ok || len(results) != 1 {
		return nil
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return nil
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return nil
	}
	reader, ok := candidate.Interface().(accountsquery.ActivityReader)
	if !ok {
		return nil
	}
	return reader
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
