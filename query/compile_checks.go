package query

import (
	"github.com/goliatone/go-accounts/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetUserMessage, core.UserAccount]                      = (*GetUserQuery)(nil)
	_ gocmd.Querier[ListMembershipsMessage, []core.OrganizationMembership] = (*ListMembershipsQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage]                = (*ListActivityQuery)(nil)

	_ AccountReader  = core.AccountService(nil)
	_ ActivityReader = core.ActivitySink(nil)
)
