package gocommand

import (
	"context"
	"fmt"
	"strings"

	accountscommand "github.com/goliatone/go-accounts/command"
	"github.com/goliatone/go-accounts/core"
	accountsquery "github.com/goliatone/go-accounts/query"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// DispatchWithResult dispatches a command and returns the value its handler
// stored on the context result collector.
func DispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	collector := command.NewResult[R]()
	if err := Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		var zero R
		return zero, err
	}
	out, _ := collector.Load()
	return out, nil
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// RegisterAccountHandlers registers and subscribes every account command and
// query. Subscriptions made before a failure are released.
func RegisterAccountHandlers(
	adapter *RegistryAdapter,
	service core.AccountService,
	activity core.ActivitySink,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: account service is required")
	}
	subscriptions := make([]commanddispatcher.Subscription, 0, 6)
	release := func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	}
	keep := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			release()
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if err := keep(RegisterAndSubscribe[accountscommand.CreateUserMessage](adapter, accountscommand.NewCreateUserCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := keep(RegisterAndSubscribe[accountscommand.UpdateUserMessage](adapter, accountscommand.NewUpdateUserCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := keep(RegisterAndSubscribe[accountscommand.DispatchOutboxMessage](adapter, accountscommand.NewDispatchOutboxCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := keep(RegisterAndSubscribeQuery[accountsquery.GetUserMessage, core.UserAccount](adapter, accountsquery.NewGetUserQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := keep(RegisterAndSubscribeQuery[accountsquery.ListMembershipsMessage, []core.OrganizationMembership](adapter, accountsquery.NewListMembershipsQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if activity != nil {
		if err := keep(RegisterAndSubscribeQuery[accountsquery.ListActivityMessage, core.ActivityPage](adapter, accountsquery.NewListActivityQuery(activity), runnerOpts...)); err != nil {
			return nil, err
		}
	}
	return subscriptions, nil
}
