package gocommand

import (
	"context"
	"errors"
	"sync"
	"testing"

	accountscommand "github.com/goliatone/go-accounts/command"
	"github.com/goliatone/go-accounts/core"
	accountsquery "github.com/goliatone/go-accounts/query"
	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type okMessage struct{}

func (okMessage) Type() string { return "accounts.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type queueMessage struct{}

func (queueMessage) Type() string { return "accounts.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(accountscommand.CreateUserMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(accountscommand.CreateUserMessage{Request: core.CreateUserRequest{Name: "Asha"}}); err != nil {
		t.Fatalf("expected create message to pass contract, got %v", err)
	}
}

func TestRegisterAccountHandlers_DispatchAndQuery(t *testing.T) {
	svc := &stubAccountService{
		users: map[string]core.UserAccount{},
	}
	activity := &stubActivitySink{}
	adapter := NewRegistryAdapter(command.NewRegistry())

	subscriptions, err := RegisterAccountHandlers(adapter, svc, activity)
	if err != nil {
		t.Fatalf("register account handlers: %v", err)
	}
	t.Cleanup(func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	})
	if len(subscriptions) != 6 {
		t.Fatalf("expected 6 subscriptions, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	created, err := DispatchWithResult[accountscommand.CreateUserMessage, core.CreateUserResult](ctx, accountscommand.CreateUserMessage{
		Request: core.CreateUserRequest{Name: "Asha"},
		Context: core.RequestContext{CallerID: "admin-1"},
	})
	if err != nil {
		t.Fatalf("dispatch create: %v", err)
	}
	if created.UserID != "user-1" {
		t.Fatalf("unexpected create result %#v", created)
	}

	account, err := Query[accountsquery.GetUserMessage, core.UserAccount](ctx, accountsquery.GetUserMessage{UserID: "user-1"})
	if err != nil {
		t.Fatalf("query user: %v", err)
	}
	if account.Name != "Asha" {
		t.Fatalf("unexpected account %#v", account)
	}

	page, err := Query[accountsquery.ListActivityMessage, core.ActivityPage](ctx, accountsquery.ListActivityMessage{})
	if err != nil {
		t.Fatalf("query activity: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("unexpected activity page %#v", page)
	}

	stats, err := DispatchWithResult[accountscommand.DispatchOutboxMessage, core.DispatchStats](ctx, accountscommand.DispatchOutboxMessage{BatchSize: 5})
	if err != nil {
		t.Fatalf("dispatch outbox: %v", err)
	}
	if stats.Claimed != 5 {
		t.Fatalf("unexpected dispatch stats %#v", stats)
	}
}

func TestRegisterAccountHandlers_RequiresService(t *testing.T) {
	if _, err := RegisterAccountHandlers(NewRegistryAdapter(nil), nil, nil); err == nil {
		t.Fatalf("expected missing service error")
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if !adapter.HasResolver("queue") {
		t.Fatalf("expected queue resolver to be registered")
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("accounts.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

type stubAccountService struct {
	mu    sync.Mutex
	users map[string]core.UserAccount
}

func (s *stubAccountService) CreateUser(_ context.Context, req core.CreateUserRequest, _ core.RequestContext) (core.CreateUserResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users["user-1"] = core.UserAccount{ID: "user-1", Name: req.Name}
	return core.CreateUserResult{UserID: "user-1"}, nil
}

func (s *stubAccountService) UpdateUser(_ context.Context, req core.UpdateUserRequest, _ core.RequestContext) (core.UpdateUserResult, error) {
	return core.UpdateUserResult{UserID: req.UserID, Response: core.ResponseSuccess}, nil
}

func (s *stubAccountService) GetUser(_ context.Context, userID string) (core.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.users[userID]
	if !ok {
		return core.UserAccount{}, errors.New("missing")
	}
	return account, nil
}

func (s *stubAccountService) ListMemberships(context.Context, string) ([]core.OrganizationMembership, error) {
	return nil, nil
}

func (s *stubAccountService) DispatchOutbox(_ context.Context, batchSize int) (core.DispatchStats, error) {
	return core.DispatchStats{Claimed: batchSize}, nil
}

type stubActivitySink struct {
	mu      sync.Mutex
	entries []core.ActivityEntry
}

func (s *stubActivitySink) Record(_ context.Context, entry core.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubActivitySink) List(context.Context, core.ActivityFilter) (core.ActivityPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ActivityPage{Items: append([]core.ActivityEntry(nil), s.entries...), Total: len(s.entries)}, nil
}
