package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/uptrace/bun"
)

// MembershipStore persists organisation memberships. Membership ids are
// time-ordered snowflake strings, so rows are written through bun directly
// rather than a uuid-keyed repository.
type MembershipStore struct {
	db *bun.DB
}

func NewMembershipStore(db *bun.DB) (*MembershipStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &MembershipStore{db: db}, nil
}

// ListByUser returns every membership row for userID, soft-deleted ones included.
func (s *MembershipStore) ListByUser(ctx context.Context, userID string) ([]core.OrganizationMembership, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: membership store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("sqlstore: user id is required")
	}
	var records []membershipRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.OrganizationMembership, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *MembershipStore) Create(ctx context.Context, membership core.OrganizationMembership) (core.OrganizationMembership, error) {
	if s == nil || s.db == nil {
		return core.OrganizationMembership{}, fmt.Errorf("sqlstore: membership store is not configured")
	}
	if strings.TrimSpace(membership.ID) == "" {
		return core.OrganizationMembership{}, fmt.Errorf("sqlstore: membership id is required")
	}
	if strings.TrimSpace(membership.UserID) == "" || strings.TrimSpace(membership.OrganisationID) == "" {
		return core.OrganizationMembership{}, fmt.Errorf("sqlstore: membership user id and organisation id are required")
	}
	now := time.Now().UTC()
	record := newMembershipRecord(membership)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.OrganizationMembership{}, err
	}
	return record.toDomain(), nil
}

func (s *MembershipStore) Update(ctx context.Context, membership core.OrganizationMembership) (core.OrganizationMembership, error) {
	if s == nil || s.db == nil {
		return core.OrganizationMembership{}, fmt.Errorf("sqlstore: membership store is not configured")
	}
	id := strings.TrimSpace(membership.ID)
	if id == "" {
		return core.OrganizationMembership{}, fmt.Errorf("sqlstore: membership id is required")
	}
	record := newMembershipRecord(membership)
	record.ID = id
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.NewUpdate().
		Model(record).
		Column("hash_tag_id", "roles", "joined_at", "left_at", "is_deleted", "updated_by", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return core.OrganizationMembership{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return core.OrganizationMembership{}, fmt.Errorf("sqlstore: membership %s not found", id)
	}
	return s.get(ctx, id)
}

func (s *MembershipStore) get(ctx context.Context, id string) (core.OrganizationMembership, error) {
	record := &membershipRecord{}
	if err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return core.OrganizationMembership{}, err
	}
	return record.toDomain(), nil
}

var _ core.MembershipStore = (*MembershipStore)(nil)
