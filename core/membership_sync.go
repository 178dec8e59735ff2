package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// MembershipPlan is the diff between requested and stored memberships.
type MembershipPlan struct {
	Create []OrganizationMembership
	Update []OrganizationMembership
	Delete []OrganizationMembership
}

// Empty reports whether applying the plan would write nothing.
func (p MembershipPlan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// OrgMembershipSynchronizer reconciles a user's organisation memberships with
// a requested list.
type OrgMembershipSynchronizer struct {
	orgs  OrganizationResolver
	store MembershipStore
	ids   IDGenerator
	now   func() time.Time
}

func NewOrgMembershipSynchronizer(
	orgs OrganizationResolver,
	store MembershipStore,
	ids IDGenerator,
	now func() time.Time,
) *OrgMembershipSynchronizer {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OrgMembershipSynchronizer{orgs: orgs, store: store, ids: ids, now: now}
}

// Resolve looks up every requested organisation in one batch. All missing ids
// are reported together.
func (s *OrgMembershipSynchronizer) Resolve(ctx context.Context, requested []MembershipRequest) (map[string]Organization, error) {
	ids := make([]string, 0, len(requested))
	for _, membership := range requested {
		ids = append(ids, membership.OrganisationID)
	}
	ids = sortedUnique(ids)
	if len(ids) == 0 {
		return map[string]Organization{}, nil
	}
	if s.orgs == nil {
		return nil, newUpstreamUnavailable(fmt.Errorf("core: organization resolver is not configured"), "resolve organisations failed")
	}
	resolved, err := s.orgs.SearchByIDs(ctx, ids)
	if err != nil {
		return nil, newUpstreamUnavailable(err, "resolve organisations failed")
	}
	missing := make([]string, 0)
	for _, id := range ids {
		if _, ok := resolved[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, newInvalidParameterValue(
			"organisations not found: "+strings.Join(missing, ", "),
			map[string]any{"missing_ids": missing},
		)
	}
	return resolved, nil
}

// Plan diffs requested memberships against stored rows. It performs no I/O.
// The root organisation row is never scheduled for deletion.
func (s *OrgMembershipSynchronizer) Plan(
	requested []MembershipRequest,
	resolved map[string]Organization,
	stored []OrganizationMembership,
	userID string,
	rootOrgID string,
	actor string,
) MembershipPlan {
	now := s.now()
	remaining := make(map[string]OrganizationMembership, len(stored))
	for _, row := range stored {
		if row.Deleted {
			continue
		}
		remaining[row.OrganisationID] = row
	}
	deleted := make(map[string]OrganizationMembership, len(stored))
	for _, row := range stored {
		if row.Deleted {
			deleted[row.OrganisationID] = row
		}
	}

	plan := MembershipPlan{}
	for _, membership := range foldMembershipRequests(requested) {
		orgID := membership.OrganisationID
		roles := withPublicRole(membership.Roles)
		hashTagID := strings.TrimSpace(membership.HashTagID)
		if org, ok := resolved[orgID]; ok && strings.TrimSpace(org.HashTagID) != "" {
			hashTagID = strings.TrimSpace(org.HashTagID)
		}

		if existing, ok := remaining[orgID]; ok {
			delete(remaining, orgID)
			merged := mergeRoles(existing.Roles, roles)
			if slices.Equal(merged, sortedRoles(existing.Roles)) && (hashTagID == "" || hashTagID == existing.HashTagID) {
				continue
			}
			existing.Roles = merged
			if hashTagID != "" {
				existing.HashTagID = hashTagID
			}
			existing.UpdatedBy = actor
			existing.UpdatedAt = now
			plan.Update = append(plan.Update, existing)
			continue
		}
		if previous, ok := deleted[orgID]; ok {
			joined := now
			previous.Deleted = false
			previous.LeftAt = nil
			previous.JoinedAt = &joined
			previous.Roles = roles
			if hashTagID != "" {
				previous.HashTagID = hashTagID
			}
			previous.UpdatedBy = actor
			previous.UpdatedAt = now
			plan.Update = append(plan.Update, previous)
			continue
		}
		joined := now
		plan.Create = append(plan.Create, OrganizationMembership{
			ID:             s.ids.NewID(),
			UserID:         userID,
			OrganisationID: orgID,
			HashTagID:      hashTagID,
			Roles:          roles,
			JoinedAt:       &joined,
			AddedBy:        actor,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	leftover := make([]string, 0, len(remaining))
	for orgID := range remaining {
		leftover = append(leftover, orgID)
	}
	sort.Strings(leftover)
	for _, orgID := range leftover {
		if orgID == rootOrgID {
			continue
		}
		row := remaining[orgID]
		left := now
		row.Deleted = true
		row.LeftAt = &left
		row.UpdatedBy = actor
		row.UpdatedAt = now
		plan.Delete = append(plan.Delete, row)
	}
	return plan
}

// Apply writes the plan. A mid-pass failure is returned without rollback;
// re-running Plan against the new stored state converges.
func (s *OrgMembershipSynchronizer) Apply(ctx context.Context, plan MembershipPlan) error {
	if plan.Empty() {
		return nil
	}
	if s.store == nil {
		return newUpstreamUnavailable(fmt.Errorf("core: membership store is not configured"), "membership sync failed")
	}
	for _, row := range plan.Create {
		if _, err := s.store.Create(ctx, row); err != nil {
			return newUpstreamUnavailable(err, "create membership failed")
		}
	}
	for _, row := range plan.Update {
		if _, err := s.store.Update(ctx, row); err != nil {
			return newUpstreamUnavailable(err, "update membership failed")
		}
	}
	for _, row := range plan.Delete {
		if _, err := s.store.Update(ctx, row); err != nil {
			return newUpstreamUnavailable(err, "remove membership failed")
		}
	}
	return nil
}

// Sync loads stored memberships, plans and applies the diff.
func (s *OrgMembershipSynchronizer) Sync(
	ctx context.Context,
	userID string,
	rootOrgID string,
	requested []MembershipRequest,
	resolved map[string]Organization,
	actor string,
) (MembershipPlan, error) {
	if s.store == nil {
		return MembershipPlan{}, newUpstreamUnavailable(fmt.Errorf("core: membership store is not configured"), "membership sync failed")
	}
	stored, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return MembershipPlan{}, newUpstreamUnavailable(err, "load memberships failed")
	}
	plan := s.Plan(requested, resolved, stored, userID, rootOrgID, actor)
	if err := s.Apply(ctx, plan); err != nil {
		return plan, err
	}
	return plan, nil
}

// foldMembershipRequests collapses repeated organisation entries into the
// first one. Roles are unioned and the last non-blank hash tag wins.
func foldMembershipRequests(requested []MembershipRequest) []MembershipRequest {
	out := make([]MembershipRequest, 0, len(requested))
	index := make(map[string]int, len(requested))
	for _, membership := range requested {
		orgID := strings.TrimSpace(membership.OrganisationID)
		if orgID == "" {
			continue
		}
		hashTagID := strings.TrimSpace(membership.HashTagID)
		if at, ok := index[orgID]; ok {
			out[at].Roles = mergeRoles(out[at].Roles, membership.Roles)
			if hashTagID != "" {
				out[at].HashTagID = hashTagID
			}
			continue
		}
		index[orgID] = len(out)
		out = append(out, MembershipRequest{
			OrganisationID: orgID,
			Roles:          sortedUnique(membership.Roles),
			HashTagID:      hashTagID,
		})
	}
	return out
}

func withPublicRole(roles []string) []string {
	out := sortedUnique(roles)
	if !slices.Contains(out, RolePublic) {
		out = append(out, RolePublic)
		sort.Strings(out)
	}
	return out
}

func mergeRoles(existing []string, requested []string) []string {
	merged := make([]string, 0, len(existing)+len(requested))
	merged = append(merged, existing...)
	merged = append(merged, requested...)
	return sortedUnique(merged)
}

func sortedRoles(roles []string) []string {
	return sortedUnique(roles)
}
