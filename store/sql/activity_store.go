package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultActivityPerPage = 25

type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*activityEntryRecord]
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activityEntryRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo}, nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	metadata := core.RedactSensitiveMap(entry.Metadata)
	objectType, objectID := parseObject(entry.Object)
	userID := metadataString(metadata, "user_id")
	if userID == "" && objectType == "user" {
		userID = objectID
	}
	if userID == "" {
		return fmt.Errorf("sqlstore: activity entry requires a user id")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	record := &activityEntryRecord{
		ID:         id,
		UserID:     userID,
		Channel:    strings.TrimSpace(entry.Channel),
		Action:     strings.TrimSpace(entry.Action),
		ObjectType: objectType,
		ObjectID:   objectID,
		Actor:      strings.TrimSpace(entry.Actor),
		Status:     strings.TrimSpace(string(entry.Status)),
		Metadata:   metadata,
		CreatedAt:  createdAt,
	}
	if record.Channel == "" {
		record.Channel = core.DefaultLifecycleChannel
	}
	if record.Action == "" {
		record.Action = "lifecycle.event"
	}
	if record.ObjectType == "" {
		record.ObjectType = "user"
		record.ObjectID = userID
	}
	if record.Actor == "" {
		record.Actor = "system"
	}
	if record.Status == "" {
		record.Status = string(core.ActivityStatusOK)
	}

	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.repo == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultActivityPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		selectors = append(selectors, repository.SelectBy("user_id", "=", userID))
	}
	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		selectors = append(selectors, repository.SelectBy("actor", "=", actor))
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.ActivityPage{}, err
	}
	items := make([]core.ActivityEntry, 0, len(records))
	for _, record := range records {
		items = append(items, activityRecordToDomain(record))
	}
	return core.ActivityPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	}, nil
}

func activityRecordToDomain(record *activityEntryRecord) core.ActivityEntry {
	if record == nil {
		return core.ActivityEntry{}
	}
	metadata := copyAnyMap(record.Metadata)
	metadata["user_id"] = strings.TrimSpace(record.UserID)
	return core.ActivityEntry{
		ID:        record.ID,
		Actor:     record.Actor,
		Action:    record.Action,
		Object:    strings.TrimSpace(record.ObjectType) + ":" + strings.TrimSpace(record.ObjectID),
		Channel:   record.Channel,
		Status:    core.ActivityStatus(record.Status),
		Metadata:  metadata,
		CreatedAt: record.CreatedAt,
	}
}

func parseObject(value string) (objectType string, objectID string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) == 1 {
		return "user", parts[0]
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func metadataString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, ok := metadata[key]
	if !ok || value == nil {
		return ""
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "" || text == "<nil>" {
		return ""
	}
	return text
}

var _ core.ActivitySink = (*ActivityStore)(nil)
