package query

import (
	"context"

	"github.com/goliatone/go-accounts/core"
)

type AccountReader interface {
	GetUser(ctx context.Context, userID string) (core.UserAccount, error)
	ListMemberships(ctx context.Context, userID string) ([]core.OrganizationMembership, error)
}

type ActivityReader interface {
	List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error)
}

type GetUserQuery struct {
	reader AccountReader
}

func NewGetUserQuery(reader AccountReader) *GetUserQuery {
	return &GetUserQuery{reader: reader}
}

func (q *GetUserQuery) Query(ctx context.Context, msg GetUserMessage) (core.UserAccount, error) {
	if q == nil || q.reader == nil {
		return core.UserAccount{}, queryDependencyError("query: account reader is required")
	}
	return q.reader.GetUser(ctx, msg.UserID)
}

type ListMembershipsQuery struct {
	reader AccountReader
}

func NewListMembershipsQuery(reader AccountReader) *ListMembershipsQuery {
	return &ListMembershipsQuery{reader: reader}
}

func (q *ListMembershipsQuery) Query(
	ctx context.Context,
	msg ListMembershipsMessage,
) ([]core.OrganizationMembership, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: account reader is required")
	}
	return q.reader.ListMemberships(ctx, msg.UserID)
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, queryDependencyError("query: activity reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
