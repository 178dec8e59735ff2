package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultLifecycleChannel = "accounts.lifecycle"

	ProjectorActivity     = "activity"
	ProjectorIndex        = "index"
	ProjectorNotification = "notification"

	OnboardingTemplate = "account.onboarding"
)

type LifecycleProjectorRegistry struct {
	mu       sync.RWMutex
	handlers map[string]LifecycleEventHandler
	order    []string
}

func NewLifecycleProjectorRegistry() *LifecycleProjectorRegistry {
	return &LifecycleProjectorRegistry{
		handlers: make(map[string]LifecycleEventHandler),
		order:    make([]string, 0),
	}
}

func (r *LifecycleProjectorRegistry) Register(name string, handler LifecycleEventHandler) {
	if r == nil || handler == nil {
		return
	}
	key := strings.TrimSpace(name)
	if key == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]LifecycleEventHandler)
	}
	if _, exists := r.handlers[key]; !exists {
		r.order = append(r.order, key)
		sort.Strings(r.order)
	}
	r.handlers[key] = handler
}

func (r *LifecycleProjectorRegistry) Handlers() []LifecycleEventHandler {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LifecycleEventHandler, 0, len(r.order))
	for _, key := range r.order {
		handler := r.handlers[key]
		if handler != nil {
			out = append(out, handler)
		}
	}
	return out
}

// LifecycleActivityProjector records audit events as activity entries.
type LifecycleActivityProjector struct {
	sink ActivitySink
	now  func() time.Time
}

func NewLifecycleActivityProjector(sink ActivitySink) *LifecycleActivityProjector {
	return &LifecycleActivityProjector{
		sink: sink,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *LifecycleActivityProjector) Handle(ctx context.Context, event LifecycleEvent) error {
	if event.Name != EventAccountCreated && event.Name != EventAccountUpdated {
		return nil
	}
	if p == nil || p.sink == nil {
		return fmt.Errorf("core: activity sink is required")
	}
	return p.sink.Record(ctx, ActivityEntry{
		ID:        strings.TrimSpace(event.ID),
		Actor:     activityActor(event),
		Action:    strings.TrimSpace(event.Name),
		Object:    "user:" + strings.TrimSpace(event.UserID),
		Channel:   DefaultLifecycleChannel,
		Status:    activityStatus(event),
		Metadata:  activityMetadata(event),
		CreatedAt: activityTime(event, p.now),
	})
}

// IndexProjector rebuilds the search document for the event's user.
type IndexProjector struct {
	users       UserStore
	memberships MembershipStore
	index       SearchIndex
}

func NewIndexProjector(users UserStore, memberships MembershipStore, index SearchIndex) *IndexProjector {
	return &IndexProjector{users: users, memberships: memberships, index: index}
}

func (p *IndexProjector) Handle(ctx context.Context, event LifecycleEvent) error {
	if event.Name != EventIndexSync {
		return nil
	}
	if p == nil || p.users == nil || p.index == nil {
		return fmt.Errorf("core: index projector dependencies are required")
	}
	account, err := p.users.Get(ctx, event.UserID)
	if err != nil {
		return err
	}
	var memberships []OrganizationMembership
	if p.memberships != nil {
		memberships, err = p.memberships.ListByUser(ctx, account.ID)
		if err != nil {
			return err
		}
	}
	return p.index.Upsert(ctx, BuildIndexDocument(account, memberships))
}

// BuildIndexDocument projects an account and its active memberships.
func BuildIndexDocument(account UserAccount, memberships []OrganizationMembership) IndexDocument {
	orgs := make([]string, 0, len(memberships))
	for _, membership := range memberships {
		if membership.Deleted {
			continue
		}
		orgs = append(orgs, membership.OrganisationID)
	}
	return IndexDocument{
		UserID:        account.ID,
		Name:          account.Name,
		Username:      account.Username,
		MaskedEmail:   account.MaskedEmail,
		MaskedPhone:   account.MaskedPhone,
		Channel:       account.Channel,
		RootOrgID:     account.RootOrgID,
		UserType:      account.UserType,
		Framework:     account.Framework,
		LocationIDs:   append([]string(nil), account.LocationIDs...),
		Organisations: sortedUnique(orgs),
		Flags:         account.Flags,
		Status:        account.Status,
		IsDeleted:     account.IsDeleted,
		UpdatedAt:     account.UpdatedAt,
	}
}

// OnboardingNotificationProjector sends the onboarding message using the
// decrypted primary contact.
type OnboardingNotificationProjector struct {
	users    UserStore
	cipher   ContactCipher
	sender   NotificationSender
	template string
}

func NewOnboardingNotificationProjector(users UserStore, cipher ContactCipher, sender NotificationSender) *OnboardingNotificationProjector {
	return &OnboardingNotificationProjector{
		users:    users,
		cipher:   cipher,
		sender:   sender,
		template: OnboardingTemplate,
	}
}

func (p *OnboardingNotificationProjector) Handle(ctx context.Context, event LifecycleEvent) error {
	if event.Name != EventOnboardingNotification {
		return nil
	}
	if p == nil || p.users == nil || p.cipher == nil || p.sender == nil {
		return fmt.Errorf("core: notification projector dependencies are required")
	}
	account, err := p.users.Get(ctx, event.UserID)
	if err != nil {
		return err
	}
	req := NotificationRequest{
		Template: p.template,
		UserID:   account.ID,
		Name:     account.Name,
		Metadata: map[string]any{
			"event_id":   strings.TrimSpace(event.ID),
			"created_by": strings.TrimSpace(event.ActorID),
			"channel":    account.Channel,
		},
	}
	if account.HasEmail() {
		if req.Email, err = p.cipher.Decrypt(ctx, account.EncryptedEmail); err != nil {
			return err
		}
	}
	if account.HasPhone() {
		if req.Phone, err = p.cipher.Decrypt(ctx, account.EncryptedPhone); err != nil {
			return err
		}
	}
	if req.Email == "" && req.Phone == "" {
		return nil
	}
	return p.sender.Send(ctx, req)
}

func activityActor(event LifecycleEvent) string {
	actor := strings.TrimSpace(event.ActorID)
	if actor == "" {
		actor = strings.TrimSpace(event.Source)
	}
	if actor == "" {
		return "system"
	}
	return actor
}

func activityTime(event LifecycleEvent, nowFn func() time.Time) time.Time {
	if !event.OccurredAt.IsZero() {
		return event.OccurredAt.UTC()
	}
	if nowFn == nil {
		return time.Now().UTC()
	}
	return nowFn().UTC()
}

func activityStatus(event LifecycleEvent) ActivityStatus {
	if raw, ok := event.Metadata["status"]; ok {
		switch strings.ToLower(strings.TrimSpace(fmt.Sprint(raw))) {
		case string(ActivityStatusError):
			return ActivityStatusError
		case string(ActivityStatusWarn):
			return ActivityStatusWarn
		}
	}
	return ActivityStatusOK
}

func activityMetadata(event LifecycleEvent) map[string]any {
	metadata := copyMap(event.Metadata)
	delete(metadata, MetadataKeyOutboxAttempts)
	metadata["user_id"] = strings.TrimSpace(event.UserID)
	metadata["action"] = strings.TrimSpace(event.Action)
	metadata["event_name"] = strings.TrimSpace(event.Name)
	if len(event.Payload) > 0 {
		metadata["payload"] = copyMap(event.Payload)
	}
	return metadata
}

func copyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ ProjectorRegistry     = (*LifecycleProjectorRegistry)(nil)
	_ LifecycleEventHandler = (*LifecycleActivityProjector)(nil)
	_ LifecycleEventHandler = (*IndexProjector)(nil)
	_ LifecycleEventHandler = (*OnboardingNotificationProjector)(nil)
)
