package command

import (
	"context"

	"github.com/goliatone/go-accounts/core"
	gocmd "github.com/goliatone/go-command"
)

type MutatingService interface {
	CreateUser(ctx context.Context, req core.CreateUserRequest, reqCtx core.RequestContext) (core.CreateUserResult, error)
	UpdateUser(ctx context.Context, req core.UpdateUserRequest, reqCtx core.RequestContext) (core.UpdateUserResult, error)
	DispatchOutbox(ctx context.Context, batchSize int) (core.DispatchStats, error)
}

type CreateUserCommand struct {
	service MutatingService
}

func NewCreateUserCommand(service MutatingService) *CreateUserCommand {
	return &CreateUserCommand{service: service}
}

func (c *CreateUserCommand) Execute(ctx context.Context, msg CreateUserMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: create user service is required")
	}
	out, err := c.service.CreateUser(ctx, msg.Request, msg.Context)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateUserCommand struct {
	service MutatingService
}

func NewUpdateUserCommand(service MutatingService) *UpdateUserCommand {
	return &UpdateUserCommand{service: service}
}

func (c *UpdateUserCommand) Execute(ctx context.Context, msg UpdateUserMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: update user service is required")
	}
	out, err := c.service.UpdateUser(ctx, msg.Request, msg.Context)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchOutboxCommand struct {
	service MutatingService
}

func NewDispatchOutboxCommand(service MutatingService) *DispatchOutboxCommand {
	return &DispatchOutboxCommand{service: service}
}

func (c *DispatchOutboxCommand) Execute(ctx context.Context, msg DispatchOutboxMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: outbox dispatch service is required")
	}
	stats, err := c.service.DispatchOutbox(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
