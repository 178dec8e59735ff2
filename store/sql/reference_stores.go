package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/goliatone/go-accounts/core"
	"github.com/uptrace/bun"
)

// OrganisationStore resolves organisations from the local reference table.
type OrganisationStore struct {
	db *bun.DB
}

func NewOrganisationStore(db *bun.DB) (*OrganisationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &OrganisationStore{db: db}, nil
}

func (s *OrganisationStore) GetByID(ctx context.Context, id string) (core.Organization, bool, error) {
	if s == nil || s.db == nil {
		return core.Organization{}, false, fmt.Errorf("sqlstore: organisation store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Organization{}, false, nil
	}
	record := &organisationRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Organization{}, false, nil
	}
	if err != nil {
		return core.Organization{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *OrganisationStore) SearchByIDs(ctx context.Context, ids []string) (map[string]core.Organization, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: organisation store is not configured")
	}
	wanted := trimmedUnique(ids)
	out := make(map[string]core.Organization, len(wanted))
	if len(wanted) == 0 {
		return out, nil
	}
	var records []organisationRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(wanted)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		out[records[i].ID] = records[i].toDomain()
	}
	return out, nil
}

func (s *OrganisationStore) GetRootOrgIDByChannel(ctx context.Context, channel string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: organisation store is not configured")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "", false, nil
	}
	record := &organisationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.channel = ?", channel).
		Where("?TableAlias.is_root_org = ?", true).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record.ID, true, nil
}

func (s *OrganisationStore) GetIDByExternalID(ctx context.Context, externalID string, provider string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: organisation store is not configured")
	}
	externalID = strings.ToLower(strings.TrimSpace(externalID))
	provider = strings.ToLower(strings.TrimSpace(provider))
	if externalID == "" {
		return "", false, nil
	}
	record := &organisationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.external_id) = ?", externalID).
		Where("LOWER(?TableAlias.provider) = ?", provider).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record.ID, true, nil
}

// FrameworkStore reads framework taxonomies and the hash tag to framework links.
type FrameworkStore struct {
	db *bun.DB
}

func NewFrameworkStore(db *bun.DB) (*FrameworkStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &FrameworkStore{db: db}, nil
}

func (s *FrameworkStore) ReadFramework(ctx context.Context, frameworkID string) (core.FrameworkTaxonomy, bool, error) {
	if s == nil || s.db == nil {
		return core.FrameworkTaxonomy{}, false, fmt.Errorf("sqlstore: framework store is not configured")
	}
	frameworkID = strings.TrimSpace(frameworkID)
	if frameworkID == "" {
		return core.FrameworkTaxonomy{}, false, nil
	}
	record := &frameworkRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", frameworkID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FrameworkTaxonomy{}, false, nil
	}
	if err != nil {
		return core.FrameworkTaxonomy{}, false, err
	}
	categories := make(map[string][]core.CategoryTerm, len(record.Categories))
	for category, terms := range record.Categories {
		categories[category] = append([]core.CategoryTerm(nil), terms...)
	}
	return core.FrameworkTaxonomy{FrameworkID: record.ID, Categories: categories}, true, nil
}

func (s *FrameworkStore) ListHashTagFrameworks(ctx context.Context, hashTagID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: framework store is not configured")
	}
	hashTagID = strings.TrimSpace(hashTagID)
	if hashTagID == "" {
		return nil, nil
	}
	var records []hashTagFrameworkRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.hash_tag_id = ?", hashTagID).
		OrderExpr("?TableAlias.framework_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.FrameworkID)
	}
	return ids, nil
}

// LocationStore maps location codes to location ids.
type LocationStore struct {
	db *bun.DB
}

func NewLocationStore(db *bun.DB) (*LocationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LocationStore{db: db}, nil
}

// Resolve returns the ids of the codes that exist. Unknown codes are dropped.
func (s *LocationStore) Resolve(ctx context.Context, codes []string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: location store is not configured")
	}
	wanted := trimmedUnique(codes)
	if len(wanted) == 0 {
		return nil, nil
	}
	var records []locationRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.code IN (?)", bun.In(wanted)).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	return ids, nil
}

type RoleStore struct {
	db *bun.DB
}

func NewRoleStore(db *bun.DB) (*RoleStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RoleStore{db: db}, nil
}

// ValidateRoles fails when any role is unknown or inactive.
func (s *RoleStore) ValidateRoles(ctx context.Context, roles []string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: role store is not configured")
	}
	wanted := trimmedUnique(roles)
	if len(wanted) == 0 {
		return nil
	}
	var records []roleRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(wanted)).
		Where("?TableAlias.active = ?", true).
		Scan(ctx)
	if err != nil {
		return err
	}
	known := make([]string, 0, len(records))
	for _, record := range records {
		known = append(known, record.ID)
	}
	var unknown []string
	for _, role := range wanted {
		if !slices.Contains(known, role) {
			unknown = append(unknown, role)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown roles %s", strings.Join(unknown, ","))
	}
	return nil
}

func trimmedUnique(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || slices.Contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}

var (
	_ core.OrganizationResolver = (*OrganisationStore)(nil)
	_ core.FrameworkReader      = (*FrameworkStore)(nil)
	_ core.LocationResolver     = (*LocationStore)(nil)
	_ core.RoleValidator        = (*RoleStore)(nil)
)
