package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	EventAccountCreated         = "account.created"
	EventAccountUpdated         = "account.updated"
	EventIndexSync              = "account.index.sync"
	EventOnboardingNotification = "account.notification.onboarding"

	DefaultEventSource = "accounts"
)

// OutboxEventPublisher enqueues lifecycle events in the outbox for later
// dispatch to projectors.
type OutboxEventPublisher struct {
	store OutboxStore
	ids   IDGenerator
	now   func() time.Time
}

func NewOutboxEventPublisher(store OutboxStore, ids IDGenerator) *OutboxEventPublisher {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &OutboxEventPublisher{
		store: store,
		ids:   ids,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *OutboxEventPublisher) Publish(ctx context.Context, event LifecycleEvent) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("core: outbox store is required")
	}
	if strings.TrimSpace(event.Name) == "" {
		return fmt.Errorf("core: lifecycle event name is required")
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = p.ids.NewID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}
	if strings.TrimSpace(event.Source) == "" {
		event.Source = DefaultEventSource
	}
	if err := p.store.Enqueue(ctx, event); err != nil {
		return fmt.Errorf("core: enqueue lifecycle outbox event failed: %w", err)
	}
	return nil
}

// EventIndexTrigger requests a search index refresh through the event port.
type EventIndexTrigger struct {
	Publisher EventPublisher
}

func (t EventIndexTrigger) TriggerSync(ctx context.Context, userID string) error {
	if t.Publisher == nil {
		return fmt.Errorf("core: event publisher is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("core: user id is required for index sync")
	}
	return t.Publisher.Publish(ctx, LifecycleEvent{
		Name:   EventIndexSync,
		UserID: userID,
		Action: "sync",
	})
}

type nopEventPublisher struct{}

func (nopEventPublisher) Publish(context.Context, LifecycleEvent) error { return nil }

var (
	_ EventPublisher   = (*OutboxEventPublisher)(nil)
	_ EventPublisher   = nopEventPublisher{}
	_ IndexSyncTrigger = EventIndexTrigger{}
)
