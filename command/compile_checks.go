package command

import (
	"github.com/goliatone/go-accounts/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[CreateUserMessage]     = (*CreateUserCommand)(nil)
	_ gocmd.Commander[UpdateUserMessage]     = (*UpdateUserCommand)(nil)
	_ gocmd.Commander[DispatchOutboxMessage] = (*DispatchOutboxCommand)(nil)

	_ MutatingService = core.AccountService(nil)
)
