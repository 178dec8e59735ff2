package query

import (
	"strings"

	"github.com/goliatone/go-accounts/core"
)

const (
	TypeGetUser         = "accounts.query.user.get"
	TypeListMemberships = "accounts.query.memberships.list"
	TypeListActivity    = "accounts.query.activity.list"
)

type GetUserMessage struct {
	UserID string
}

func (GetUserMessage) Type() string { return TypeGetUser }

func (m GetUserMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}

type ListMembershipsMessage struct {
	UserID string
}

func (ListMembershipsMessage) Type() string { return TypeListMemberships }

func (m ListMembershipsMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryInvalidInputError("query: page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryInvalidInputError("query: per_page must be >= 0")
	}
	return nil
}
