package command

import (
	"strings"

	"github.com/goliatone/go-accounts/core"
)

const (
	TypeCreateUser     = "accounts.command.user.create"
	TypeUpdateUser     = "accounts.command.user.update"
	TypeDispatchOutbox = "accounts.command.outbox.dispatch"
)

type CreateUserMessage struct {
	Request core.CreateUserRequest
	Context core.RequestContext
}

func (CreateUserMessage) Type() string { return TypeCreateUser }

func (m CreateUserMessage) Validate() error {
	if strings.TrimSpace(m.Request.Name) == "" {
		return commandValidationError("name", "name is required")
	}
	return nil
}

type UpdateUserMessage struct {
	Request core.UpdateUserRequest
	Context core.RequestContext
}

func (UpdateUserMessage) Type() string { return TypeUpdateUser }

func (m UpdateUserMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	if m.Request.Name != nil && strings.TrimSpace(*m.Request.Name) == "" {
		return commandValidationError("name", "name cannot be blank")
	}
	return nil
}

type DispatchOutboxMessage struct {
	// BatchSize zero falls back to the configured outbox batch size.
	BatchSize int
}

func (DispatchOutboxMessage) Type() string { return TypeDispatchOutbox }

func (m DispatchOutboxMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandInvalidInputError("command: batch size cannot be negative")
	}
	return nil
}
