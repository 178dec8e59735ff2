package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/uptrace/bun"
)

// AttributeStore keeps the free-form attribute document of each account.
// Updates merge into the stored document; a nil value removes the key.
type AttributeStore struct {
	db *bun.DB
}

func NewAttributeStore(db *bun.DB) (*AttributeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &AttributeStore{db: db}, nil
}

func (s *AttributeStore) Save(ctx context.Context, userID string, attributes map[string]any, operation string) (core.AttributeSaveResult, error) {
	result := core.AttributeSaveResult{}
	if s == nil || s.db == nil {
		return result, fmt.Errorf("sqlstore: attribute store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return result, fmt.Errorf("sqlstore: user id is required")
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &userAttributesRecord{}
		err := tx.NewSelect().Model(current).Where("?TableAlias.user_id = ?", userID).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			current = &userAttributesRecord{UserID: userID, Attributes: map[string]any{}}
		case err != nil:
			return err
		}
		if operation == core.OperationCreate || current.Attributes == nil {
			current.Attributes = map[string]any{}
		}
		for key, value := range attributes {
			key = strings.TrimSpace(key)
			if key == "" {
				result.Errors = append(result.Errors, core.FieldError{
					Field:   "attributes",
					Message: "attribute name must not be blank",
				})
				continue
			}
			if value == nil {
				delete(current.Attributes, key)
				continue
			}
			current.Attributes[key] = value
		}
		current.Operation = strings.TrimSpace(operation)
		current.UpdatedAt = time.Now().UTC()

		_, err = tx.NewInsert().
			Model(current).
			On("CONFLICT (user_id) DO UPDATE").
			Set("attributes = EXCLUDED.attributes").
			Set("last_operation = EXCLUDED.last_operation").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	return result, err
}

// Load returns the stored attribute document for userID.
func (s *AttributeStore) Load(ctx context.Context, userID string) (map[string]any, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: attribute store is not configured")
	}
	record := &userAttributesRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return copyAnyMap(record.Attributes), nil
}

var _ core.AttributeStore = (*AttributeStore)(nil)
