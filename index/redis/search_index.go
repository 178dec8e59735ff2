package redisindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-accounts/core"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "accounts:index:v1"

// Client is the subset of go-redis used by the index. *redis.Client and
// *redis.ClusterClient satisfy it.
type Client interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// SearchIndex keeps one JSON document per user in a hash plus a set of user
// ids per organisation.
type SearchIndex struct {
	client Client
	prefix string
}

func NewSearchIndex(client Client, prefix string) *SearchIndex {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SearchIndex{client: client, prefix: prefix}
}

func (i *SearchIndex) Upsert(ctx context.Context, doc core.IndexDocument) error {
	if i == nil || i.client == nil {
		return fmt.Errorf("redisindex: client is not configured")
	}
	userID := strings.TrimSpace(doc.UserID)
	if userID == "" {
		return fmt.Errorf("redisindex: user id is required")
	}
	previous, found, err := i.Get(ctx, userID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("redisindex: encode document: %w", err)
	}
	if err := i.client.HSet(ctx, i.usersKey(), userID, payload).Err(); err != nil {
		return fmt.Errorf("redisindex: write document %s: %w", userID, err)
	}

	current := activeOrganisations(doc)
	if found {
		for orgID := range activeOrganisations(previous) {
			if _, keep := current[orgID]; keep {
				continue
			}
			if err := i.client.SRem(ctx, i.organisationKey(orgID), userID).Err(); err != nil {
				return fmt.Errorf("redisindex: drop %s from %s: %w", userID, orgID, err)
			}
		}
	}
	for orgID := range current {
		if err := i.client.SAdd(ctx, i.organisationKey(orgID), userID).Err(); err != nil {
			return fmt.Errorf("redisindex: add %s to %s: %w", userID, orgID, err)
		}
	}
	return nil
}

func (i *SearchIndex) Get(ctx context.Context, userID string) (core.IndexDocument, bool, error) {
	if i == nil || i.client == nil {
		return core.IndexDocument{}, false, fmt.Errorf("redisindex: client is not configured")
	}
	raw, err := i.client.HGet(ctx, i.usersKey(), strings.TrimSpace(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.IndexDocument{}, false, nil
		}
		return core.IndexDocument{}, false, fmt.Errorf("redisindex: read document %s: %w", userID, err)
	}
	var doc core.IndexDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return core.IndexDocument{}, false, fmt.Errorf("redisindex: decode document %s: %w", userID, err)
	}
	return doc, true, nil
}

// UsersInOrganisation lists indexed user ids for an organisation, sorted.
func (i *SearchIndex) UsersInOrganisation(ctx context.Context, orgID string) ([]string, error) {
	if i == nil || i.client == nil {
		return nil, fmt.Errorf("redisindex: client is not configured")
	}
	members, err := i.client.SMembers(ctx, i.organisationKey(orgID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisindex: list organisation %s: %w", orgID, err)
	}
	sort.Strings(members)
	return members, nil
}

func (i *SearchIndex) usersKey() string {
	return i.prefix + ":users"
}

func (i *SearchIndex) organisationKey(orgID string) string {
	return i.prefix + ":org:" + strings.TrimSpace(orgID)
}

// Deleted users keep their document but leave every organisation set.
func activeOrganisations(doc core.IndexDocument) map[string]struct{} {
	out := map[string]struct{}{}
	if doc.IsDeleted {
		return out
	}
	for _, orgID := range doc.Organisations {
		orgID = strings.TrimSpace(orgID)
		if orgID == "" {
			continue
		}
		out[orgID] = struct{}{}
	}
	return out
}

var (
	_ core.SearchIndex = (*SearchIndex)(nil)
	_ Client           = (*redis.Client)(nil)
)
