package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type UserStore struct {
	db   *bun.DB
	repo repository.Repository[*userRecord]
}

func NewUserStore(db *bun.DB) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*userRecord](db, userHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid user repository wiring: %w", err)
		}
	}
	return &UserStore{db: db, repo: repo}, nil
}

func (s *UserStore) Insert(ctx context.Context, user core.UserAccount) (core.UserAccount, error) {
	if s == nil || s.repo == nil {
		return core.UserAccount{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	if strings.TrimSpace(user.ID) == "" {
		return core.UserAccount{}, fmt.Errorf("sqlstore: user id is required")
	}
	now := time.Now().UTC()
	record := newUserRecord(user)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.UserAccount{}, err
	}
	return created.toDomain(), nil
}

// Update writes the full row; callers merge partial changes before calling.
func (s *UserStore) Update(ctx context.Context, user core.UserAccount) (core.UserAccount, error) {
	if s == nil || s.repo == nil {
		return core.UserAccount{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return core.UserAccount{}, fmt.Errorf("sqlstore: user id is required")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return core.UserAccount{}, err
	}
	record := newUserRecord(user)
	record.ID = id
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	updated, err := s.repo.Update(ctx, record, repository.UpdateByID(id))
	if err != nil {
		return core.UserAccount{}, err
	}
	return updated.toDomain(), nil
}

func (s *UserStore) Get(ctx context.Context, id string) (core.UserAccount, error) {
	if s == nil || s.db == nil {
		return core.UserAccount{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.UserAccount{}, fmt.Errorf("sqlstore: user id is required")
	}
	record := &userRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserAccount{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
	}
	if err != nil {
		return core.UserAccount{}, err
	}
	return record.toDomain(), nil
}

// LookupIDs returns the ids of live accounts whose identity column equals value.
func (s *UserStore) LookupIDs(ctx context.Context, key core.IdentityKey, value string) ([]string, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: user store is not configured")
	}
	column, err := identityColumn(key)
	if err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy(column, "=", value),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_deleted = ?", false)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	return ids, nil
}

func identityColumn(key core.IdentityKey) (string, error) {
	switch key {
	case core.IdentityEmail, core.IdentityPhone, core.IdentityUsername:
		return string(key), nil
	default:
		return "", fmt.Errorf("sqlstore: unsupported identity key %q", key)
	}
}

var _ core.UserStore = (*UserStore)(nil)
