package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	testCustodianChannel = "custodian"
	testCustodianRoot    = "org-custodian"
	testChannel          = "chan-a"
	testRootOrg          = "org-root"
	testSubOrg           = "org-sub"
	testOtherOrg         = "org-other"
	testHashTag          = "ht-root"
	testFramework        = "fw-1"
)

type testCipher struct{}

func (testCipher) Encrypt(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("test cipher: plaintext is required")
	}
	return "enc:" + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (testCipher) Decrypt(_ context.Context, ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", fmt.Errorf("test cipher: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, "enc:"))
	if err != nil {
		return "", fmt.Errorf("test cipher: decode ciphertext: %w", err)
	}
	return string(decoded), nil
}

func (testCipher) Fingerprint(value string) string {
	return "fp:" + value
}

type sequenceIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (g *sequenceIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}

type memoryUserStore struct {
	mu        sync.Mutex
	byID      map[string]UserAccount
	inserts   int
	updates   int
	insertErr error
	updateErr error
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{byID: map[string]UserAccount{}}
}

func (s *memoryUserStore) Insert(_ context.Context, user UserAccount) (UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return UserAccount{}, s.insertErr
	}
	if _, exists := s.byID[user.ID]; exists {
		return UserAccount{}, fmt.Errorf("duplicate key value violates unique constraint")
	}
	s.inserts++
	s.byID[user.ID] = user
	return user, nil
}

func (s *memoryUserStore) Update(_ context.Context, user UserAccount) (UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return UserAccount{}, s.updateErr
	}
	if _, exists := s.byID[user.ID]; !exists {
		return UserAccount{}, ErrUserNotFound
	}
	s.updates++
	s.byID[user.ID] = user
	return user, nil
}

func (s *memoryUserStore) Get(_ context.Context, id string) (UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return UserAccount{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return user, nil
}

func (s *memoryUserStore) LookupIDs(_ context.Context, key IdentityKey, value string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for id, user := range s.byID {
		var candidate string
		switch key {
		case IdentityEmail:
			candidate = user.EmailFingerprint
		case IdentityPhone:
			candidate = user.PhoneFingerprint
		case IdentityUsername:
			candidate = user.Username
		}
		if candidate != "" && candidate == value {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryUserStore) put(user UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[user.ID] = user
}

type memoryMembershipStore struct {
	mu         sync.Mutex
	rows       map[string]OrganizationMembership
	creates    int
	updates    int
	failOnCall int
	calls      int
}

func newMemoryMembershipStore() *memoryMembershipStore {
	return &memoryMembershipStore{rows: map[string]OrganizationMembership{}}
}

func (s *memoryMembershipStore) ListByUser(_ context.Context, userID string) ([]OrganizationMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []OrganizationMembership{}
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrganisationID < out[j].OrganisationID })
	return out, nil
}

func (s *memoryMembershipStore) Create(_ context.Context, row OrganizationMembership) (OrganizationMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return OrganizationMembership{}, err
	}
	s.creates++
	s.rows[row.ID] = row
	return row, nil
}

func (s *memoryMembershipStore) Update(_ context.Context, row OrganizationMembership) (OrganizationMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return OrganizationMembership{}, err
	}
	if _, ok := s.rows[row.ID]; !ok {
		return OrganizationMembership{}, fmt.Errorf("membership %s not found", row.ID)
	}
	s.updates++
	s.rows[row.ID] = row
	return row, nil
}

func (s *memoryMembershipStore) fail() error {
	s.calls++
	if s.failOnCall > 0 && s.calls == s.failOnCall {
		return fmt.Errorf("membership store connection refused")
	}
	return nil
}

func (s *memoryMembershipStore) put(rows ...OrganizationMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.rows[row.ID] = row
	}
}

func (s *memoryMembershipStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.updates
}

type stubOrgResolver struct {
	mu         sync.Mutex
	orgs       map[string]Organization
	channels   map[string]string
	externals  map[string]string
	err        error
	batchCalls int
}

func newStubOrgResolver() *stubOrgResolver {
	return &stubOrgResolver{
		orgs: map[string]Organization{
			testRootOrg:       {ID: testRootOrg, IsRootOrg: true, Channel: testChannel, HashTagID: testHashTag},
			testSubOrg:        {ID: testSubOrg, RootOrgID: testRootOrg, HashTagID: "ht-sub"},
			testOtherOrg:      {ID: testOtherOrg, IsRootOrg: true, Channel: "chan-b", HashTagID: "ht-other"},
			testCustodianRoot: {ID: testCustodianRoot, IsRootOrg: true, Channel: testCustodianChannel},
		},
		channels: map[string]string{
			testChannel:          testRootOrg,
			"chan-b":             testOtherOrg,
			testCustodianChannel: testCustodianRoot,
		},
		externals: map[string]string{
			"ext-sub|" + testChannel: testSubOrg,
		},
	}
}

func (r *stubOrgResolver) GetByID(_ context.Context, id string) (Organization, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Organization{}, false, r.err
	}
	org, ok := r.orgs[id]
	return org, ok, nil
}

func (r *stubOrgResolver) SearchByIDs(_ context.Context, ids []string) (map[string]Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchCalls++
	if r.err != nil {
		return nil, r.err
	}
	out := map[string]Organization{}
	for _, id := range ids {
		if org, ok := r.orgs[id]; ok {
			out[id] = org
		}
	}
	return out, nil
}

func (r *stubOrgResolver) GetRootOrgIDByChannel(_ context.Context, channel string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", false, r.err
	}
	id, ok := r.channels[channel]
	return id, ok, nil
}

func (r *stubOrgResolver) GetIDByExternalID(_ context.Context, externalID string, provider string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", false, r.err
	}
	id, ok := r.externals[externalID+"|"+provider]
	return id, ok, nil
}

type stubFrameworkReader struct {
	mu         sync.Mutex
	taxonomies map[string]FrameworkTaxonomy
	sets       map[string][]string
	reads      int
	listings   int
}

func newStubFrameworkReader() *stubFrameworkReader {
	return &stubFrameworkReader{
		taxonomies: map[string]FrameworkTaxonomy{
			testFramework: {
				FrameworkID: testFramework,
				Categories: map[string][]CategoryTerm{
					"board":   {{ID: "b1", Name: "CBSE"}},
					"subject": {{ID: "s1", Name: "Mathematics"}, {ID: "s2", Name: "Science"}},
				},
			},
			"fw-2": {FrameworkID: "fw-2", Categories: map[string][]CategoryTerm{}},
		},
		sets: map[string][]string{
			testHashTag: {testFramework},
		},
	}
}

func (r *stubFrameworkReader) ReadFramework(_ context.Context, frameworkID string) (FrameworkTaxonomy, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	taxonomy, ok := r.taxonomies[frameworkID]
	return taxonomy, ok, nil
}

func (r *stubFrameworkReader) ListHashTagFrameworks(_ context.Context, hashTagID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings++
	return append([]string(nil), r.sets[hashTagID]...), nil
}

type stubLocationResolver struct {
	ids map[string]string
	err error
}

func (r stubLocationResolver) Resolve(_ context.Context, codes []string) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := []string{}
	for _, code := range codes {
		if id, ok := r.ids[code]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

type stubRoleValidator struct {
	allowed map[string]bool
}

func (v stubRoleValidator) ValidateRoles(_ context.Context, roles []string) error {
	for _, role := range roles {
		if !v.allowed[role] {
			return fmt.Errorf("role %s is not supported", role)
		}
	}
	return nil
}

type stubAttributeStore struct {
	mu     sync.Mutex
	result AttributeSaveResult
	err    error
	calls  []string
}

func (s *stubAttributeStore) Save(_ context.Context, userID string, _ map[string]any, operation string) (AttributeSaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userID+":"+operation)
	return s.result, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) named(name string) []LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []LifecycleEvent{}
	for _, event := range p.events {
		if event.Name == name {
			out = append(out, event)
		}
	}
	return out
}

type recordingIndexTrigger struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (t *recordingIndexTrigger) TriggerSync(_ context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users = append(t.users, userID)
	return t.err
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type serviceFixture struct {
	svc         *Service
	users       *memoryUserStore
	memberships *memoryMembershipStore
	orgs        *stubOrgResolver
	frameworks  *stubFrameworkReader
	attributes  *stubAttributeStore
	publisher   *recordingPublisher
	index       *recordingIndexTrigger
}

func newServiceFixture(t *testing.T, opts ...Option) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		users:       newMemoryUserStore(),
		memberships: newMemoryMembershipStore(),
		orgs:        newStubOrgResolver(),
		frameworks:  newStubFrameworkReader(),
		attributes:  &stubAttributeStore{},
		publisher:   &recordingPublisher{},
		index:       &recordingIndexTrigger{},
	}
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	base := []Option{
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithUserStore(fixture.users),
		WithMembershipStore(fixture.memberships),
		WithOrganizationResolver(fixture.orgs),
		WithFrameworkReader(fixture.frameworks),
		WithLocationResolver(stubLocationResolver{ids: map[string]string{"KA": "loc-ka", "BLR": "loc-blr"}}),
		WithRoleValidator(stubRoleValidator{allowed: map[string]bool{RolePublic: true, "ORG_ADMIN": true}}),
		WithAttributeStore(fixture.attributes),
		WithContactCipher(testCipher{}),
		WithUserIDGenerator(&sequenceIDs{prefix: "user"}),
		WithMembershipIDGenerator(&sequenceIDs{prefix: "m"}),
		WithEventPublisher(fixture.publisher),
		WithIndexSyncTrigger(fixture.index),
		WithClock(func() time.Time { return clock }),
	}
	cfg := DefaultConfig()
	cfg.Custodian = CustodianConfig{Channel: testCustodianChannel, RootOrgID: testCustodianRoot}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.svc = svc
	return fixture
}

func strPtr(value string) *string {
	return &value
}

func storedAccount(id string) UserAccount {
	return UserAccount{
		ID:               id,
		Name:             "Stored User",
		EncryptedEmail:   "enc:" + base64.StdEncoding.EncodeToString([]byte("stored@x.com")),
		EmailFingerprint: "fp:stored@x.com",
		MaskedEmail:      "st****@x.com",
		Channel:          testChannel,
		OrganisationID:   testRootOrg,
		RootOrgID:        testRootOrg,
		UserType:         UserTypeOther,
	}
}
