package core

import (
	"context"
	"strings"
	"time"
)

// AuditEmitter publishes one lifecycle event per successful primary write.
// Publish failures are logged and never returned.
type AuditEmitter struct {
	publisher EventPublisher
	logger    Logger
	now       func() time.Time
}

func NewAuditEmitter(publisher EventPublisher, logger Logger, now func() time.Time) *AuditEmitter {
	if publisher == nil {
		publisher = nopEventPublisher{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AuditEmitter{publisher: publisher, logger: logger, now: now}
}

func (a *AuditEmitter) Emit(ctx context.Context, operation string, account UserAccount, reqCtx RequestContext) {
	if a == nil {
		return
	}
	event := auditEvent(operation, account, reqCtx, a.now())
	if err := a.publisher.Publish(ctx, event); err != nil {
		logWithLevel(ctx, a.logger, "warn", "audit event publish failed", map[string]any{
			"event_name": event.Name,
			"user_id":    account.ID,
			"error":      err.Error(),
		})
	}
}

func auditEvent(operation string, account UserAccount, reqCtx RequestContext, now time.Time) LifecycleEvent {
	name := EventAccountUpdated
	if operation == OperationCreate {
		name = EventAccountCreated
	}
	actor := auditActor(operation, account, reqCtx)
	metadata := map[string]any{
		"rollup": map[string]any{"l1": account.RootOrgID},
	}
	if signupType := strings.TrimSpace(reqCtx.SignupType); signupType != "" {
		metadata["signup_type"] = signupType
	}
	if source := strings.TrimSpace(reqCtx.RequestSource); source != "" {
		metadata["request_source"] = source
	}
	return LifecycleEvent{
		Name:       name,
		UserID:     account.ID,
		ActorID:    actor,
		Action:     operation,
		Source:     DefaultEventSource,
		OccurredAt: now,
		Payload: map[string]any{
			"user_id":         account.ID,
			"channel":         account.Channel,
			"root_org_id":     account.RootOrgID,
			"organisation_id": account.OrganisationID,
			"user_type":       account.UserType,
		},
		Metadata: metadata,
	}
}

// auditActor falls back to the account itself for self sign-up.
func auditActor(operation string, account UserAccount, reqCtx RequestContext) string {
	if actor := strings.TrimSpace(reqCtx.RequestedBy); actor != "" && operation == OperationUpdate {
		return actor
	}
	if actor := strings.TrimSpace(reqCtx.CallerID); actor != "" {
		return actor
	}
	return account.ID
}
