package core

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestServiceCreateUser_ReturnsUniqueIDs(t *testing.T) {
	fixture := newServiceFixture(t)
	seen := map[string]bool{}
	for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		result, err := fixture.svc.CreateUser(context.Background(), CreateUserRequest{
			Name:    "User",
			Email:   strPtr(email),
			Channel: strPtr(testChannel),
		}, RequestContext{Version: APIVersionV2})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if result.UserID == "" || seen[result.UserID] {
			t.Fatalf("expected fresh non-empty id, got %q", result.UserID)
		}
		seen[result.UserID] = true
	}
}

func TestServiceCreateUser_PersistsSealedContactsAndRootMembership(t *testing.T) {
	fixture := newServiceFixture(t)
	result, err := fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:           "Asha",
		Email:          strPtr("Asha@X.com"),
		Phone:          strPtr("9876543210"),
		OrganisationID: strPtr(testSubOrg),
		Channel:        strPtr(testChannel),
		EmailVerified:  boolPtr(true),
		LocationCodes:  []string{"KA"},
	}, RequestContext{Version: APIVersionV2, CallerID: "admin-1", SignupType: "sso", RequestSource: "portal"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	account, err := fixture.svc.GetUser(context.Background(), result.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if account.EmailFingerprint != "fp:asha@x.com" || account.MaskedEmail != "as**@x.com" {
		t.Fatalf("unexpected email sealing %#v", account)
	}
	if account.EncryptedEmail == "" || account.EncryptedEmail == "asha@x.com" {
		t.Fatalf("expected encrypted email, got %q", account.EncryptedEmail)
	}
	if account.MaskedPhone != "******3210" {
		t.Fatalf("unexpected masked phone %q", account.MaskedPhone)
	}
	if account.RootOrgID != testRootOrg || account.OrganisationID != testSubOrg || account.Channel != testChannel {
		t.Fatalf("unexpected organisation resolution %#v", account)
	}
	if account.Flags != EncodeFlags(VerificationFlags{StateValidated: true, EmailVerified: true}) {
		t.Fatalf("unexpected flags %03b", account.Flags)
	}
	if !reflect.DeepEqual(account.LocationIDs, []string{"loc-ka"}) {
		t.Fatalf("unexpected location ids %#v", account.LocationIDs)
	}
	if account.UserType != UserTypeOther || account.CreatedBy != "admin-1" {
		t.Fatalf("expected defaulted user type and caller stamp, got %#v", account)
	}

	memberships, err := fixture.svc.ListMemberships(context.Background(), result.UserID)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(memberships) != 1 || memberships[0].OrganisationID != testSubOrg {
		t.Fatalf("expected initial organisation membership, got %#v", memberships)
	}

	audits := fixture.publisher.named(EventAccountCreated)
	if len(audits) != 1 {
		t.Fatalf("expected one audit event, got %d", len(audits))
	}
	audit := audits[0]
	if audit.ActorID != "admin-1" || audit.Action != OperationCreate {
		t.Fatalf("unexpected audit actor/action %#v", audit)
	}
	if audit.Metadata["signup_type"] != "sso" || audit.Metadata["request_source"] != "portal" {
		t.Fatalf("expected correlated context, got %#v", audit.Metadata)
	}
	if rollup, _ := audit.Metadata["rollup"].(map[string]any); rollup["l1"] != testRootOrg {
		t.Fatalf("expected rollup l1 root org, got %#v", audit.Metadata["rollup"])
	}
	if len(fixture.publisher.named(EventOnboardingNotification)) != 1 {
		t.Fatalf("expected onboarding notification for caller-created account")
	}
	if len(fixture.index.users) != 1 || fixture.index.users[0] != result.UserID {
		t.Fatalf("expected index sync trigger, got %#v", fixture.index.users)
	}
}

func TestServiceCreateUser_TeacherUnderCustodianIsRejected(t *testing.T) {
	fixture := newServiceFixture(t)
	_, err := fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:     "Teacher",
		Email:    strPtr("t@x.com"),
		UserType: strPtr("teacher"),
	}, RequestContext{Version: APIVersionV2})
	if ErrorKindOf(err) != KindPolicyViolation {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if fixture.users.inserts != 0 {
		t.Fatalf("expected no write on validation failure")
	}

	_, err = fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:     "Teacher",
		Email:    strPtr("t@x.com"),
		UserType: strPtr("teacher"),
		Channel:  strPtr(testCustodianChannel),
	}, RequestContext{Version: APIVersionV2})
	if ErrorKindOf(err) != KindPolicyViolation {
		t.Fatalf("expected policy violation for explicit custodian channel, got %v", err)
	}
}

func TestServiceCreateUser_ExplicitRootOrgSkipsCustodian(t *testing.T) {
	fixture := newServiceFixture(t)
	result, err := fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:      "Teacher",
		Email:     strPtr("t@x.com"),
		UserType:  strPtr("teacher"),
		RootOrgID: strPtr(" " + testRootOrg + " "),
	}, RequestContext{Version: APIVersionV2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	account, err := fixture.svc.GetUser(context.Background(), result.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if account.RootOrgID != testRootOrg || account.Channel != testChannel || account.UserType != UserTypeTeacher {
		t.Fatalf("expected explicit root org resolution, got %#v", account)
	}
	if !DecodeFlags(account.Flags).StateValidated {
		t.Fatalf("expected state validated outside custodian, got %03b", account.Flags)
	}

	_, err = fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:      "User",
		Email:     strPtr("u@x.com"),
		RootOrgID: strPtr(testSubOrg),
	}, RequestContext{Version: APIVersionV2})
	if ErrorKindOf(err) != KindInvalidParameterValue {
		t.Fatalf("expected sub organisation as root org to fail, got %v", err)
	}
	_, err = fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:      "User",
		Email:     strPtr("v@x.com"),
		RootOrgID: strPtr("org-missing"),
	}, RequestContext{Version: APIVersionV2})
	if ErrorKindOf(err) != KindInvalidParameterValue {
		t.Fatalf("expected unknown root org to fail, got %v", err)
	}
}

func TestServiceCreateUser_PartialLocationCodesKeepResolved(t *testing.T) {
	fixture := newServiceFixture(t)
	result, err := fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:          "User",
		Email:         strPtr("loc@x.com"),
		Channel:       strPtr(testChannel),
		LocationCodes: []string{"KA", "ZZ"},
	}, RequestContext{Version: APIVersionV2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	account, err := fixture.svc.GetUser(context.Background(), result.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !reflect.DeepEqual(account.LocationIDs, []string{"loc-ka"}) {
		t.Fatalf("expected resolved codes only, got %#v", account.LocationIDs)
	}

	_, err = fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:          "User",
		Email:         strPtr("loc2@x.com"),
		Channel:       strPtr(testChannel),
		LocationCodes: []string{"ZZ"},
	}, RequestContext{Version: APIVersionV2})
	if ErrorKindOf(err) != KindInvalidParameterValue {
		t.Fatalf("expected unresolved codes to fail, got %v", err)
	}
}

func TestServiceCreateUser_SubOrgWithMissingRootFails(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.orgs.mu.Lock()
	fixture.orgs.orgs["org-orphan"] = Organization{ID: "org-orphan", RootOrgID: "org-gone"}
	fixture.orgs.mu.Unlock()

	_, err := fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:           "User",
		Email:          strPtr("orphan@x.com"),
		OrganisationID: strPtr("org-orphan"),
	}, RequestContext{Version: APIVersionV2})
	if ErrorKindOf(err) != KindInvalidParameterValue {
		t.Fatalf("expected missing root organisation to fail, got %v", err)
	}
	if fixture.users.inserts != 0 {
		t.Fatalf("expected no write on validation failure")
	}
}

func TestServiceCreateUser_RecoveryEmailCollision(t *testing.T) {
	fixture := newServiceFixture(t)
	_, err := fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:          "User",
		Email:         strPtr("a@x.com"),
		RecoveryEmail: strPtr("A@x.com"),
	}, RequestContext{Version: APIVersionV2})
	if ErrorKindOf(err) != KindRecoveryParamsMatch {
		t.Fatalf("expected recovery collision, got %v", err)
	}
	if fields := ErrorDetails(err)["fields"]; !reflect.DeepEqual(fields, []string{"email", "recoveryEmail"}) {
		t.Fatalf("expected email/recoveryEmail named, got %#v", fields)
	}
}

func TestServiceCreateUser_ValidationFailures(t *testing.T) {
	cases := []struct {
		name   string
		req    CreateUserRequest
		reqCtx RequestContext
		kind   ErrorKind
	}{
		{
			name:   "v1 requires username",
			req:    CreateUserRequest{Name: "User", Email: strPtr("a@x.com")},
			reqCtx: RequestContext{Version: APIVersionV1},
			kind:   KindInvalidRequestData,
		},
		{
			name:   "v2 requires email or phone",
			req:    CreateUserRequest{Name: "User"},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindInvalidRequestData,
		},
		{
			name:   "malformed email",
			req:    CreateUserRequest{Name: "User", Email: strPtr("not-an-email")},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindInvalidRequestData,
		},
		{
			name:   "malformed phone",
			req:    CreateUserRequest{Name: "User", Phone: strPtr("12ab")},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindInvalidRequestData,
		},
		{
			name:   "unknown organisation",
			req:    CreateUserRequest{Name: "User", Email: strPtr("a@x.com"), OrganisationID: strPtr("org-missing")},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindInvalidParameterValue,
		},
		{
			name: "channel disagrees with organisation",
			req: CreateUserRequest{
				Name:           "User",
				Email:          strPtr("a@x.com"),
				OrganisationID: strPtr(testRootOrg),
				Channel:        strPtr("chan-b"),
			},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindParameterMismatch,
		},
		{
			name:   "unknown channel",
			req:    CreateUserRequest{Name: "User", Email: strPtr("a@x.com"), Channel: strPtr("chan-x")},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindInvalidParameterValue,
		},
		{
			name: "external org id disagrees with organisation",
			req: CreateUserRequest{
				Name:           "User",
				Email:          strPtr("a@x.com"),
				OrganisationID: strPtr(testRootOrg),
				OrgExternalID:  strPtr("ext-sub"),
				Channel:        strPtr(testChannel),
			},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindParameterMismatch,
		},
		{
			name: "duplicate external id provider and type",
			req: CreateUserRequest{
				Name:  "User",
				Email: strPtr("a@x.com"),
				ExternalIDs: []ExternalID{
					{ID: "1", IDType: "sso", Provider: "state"},
					{ID: "2", IDType: "SSO", Provider: "State"},
				},
			},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindInvalidRequestData,
		},
		{
			name:   "unresolvable location codes",
			req:    CreateUserRequest{Name: "User", Email: strPtr("a@x.com"), LocationCodes: []string{"ZZ"}},
			reqCtx: RequestContext{Version: APIVersionV2},
			kind:   KindInvalidParameterValue,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newServiceFixture(t)
			_, err := fixture.svc.CreateUser(context.Background(), tc.req, tc.reqCtx)
			if got := ErrorKindOf(err); got != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, got, err)
			}
			if fixture.users.inserts != 0 {
				t.Fatalf("expected no write on validation failure")
			}
		})
	}
}

func TestServiceCreateUser_DuplicateEmailConflicts(t *testing.T) {
	fixture := newServiceFixture(t)
	req := CreateUserRequest{Name: "User", Email: strPtr("dup@x.com")}
	if _, err := fixture.svc.CreateUser(context.Background(), req, RequestContext{Version: APIVersionV2}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	req.Email = strPtr("DUP@x.com")
	_, err := fixture.svc.CreateUser(context.Background(), req, RequestContext{Version: APIVersionV2})
	if ErrorKindOf(err) != KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestServiceCreateUser_FrameworkValidation(t *testing.T) {
	fixture := newServiceFixture(t)
	base := func(framework FrameworkSelection) CreateUserRequest {
		return CreateUserRequest{
			Name:      "User",
			Email:     strPtr("fw@x.com"),
			Channel:   strPtr(testChannel),
			Framework: &framework,
		}
	}
	ctx := context.Background()
	reqCtx := RequestContext{Version: APIVersionV2}

	_, err := fixture.svc.CreateUser(ctx, base(FrameworkSelection{
		IDs:        []string{testFramework},
		Categories: map[string][]string{"subject": {"Astrology"}},
	}), reqCtx)
	if ErrorKindOf(err) != KindInvalidParameterValue {
		t.Fatalf("expected invalid term rejection, got %v", err)
	}

	_, err = fixture.svc.CreateUser(ctx, base(FrameworkSelection{IDs: []string{"fw-2"}}), reqCtx)
	if ErrorKindOf(err) != KindInvalidParameterValue {
		t.Fatalf("expected framework outside hash-tag set rejection, got %v", err)
	}

	_, err = fixture.svc.CreateUser(ctx, base(FrameworkSelection{Categories: map[string][]string{"subject": {"Science"}}}), reqCtx)
	if ErrorKindOf(err) != KindInvalidRequestData {
		t.Fatalf("expected mandatory framework id, got %v", err)
	}

	result, err := fixture.svc.CreateUser(ctx, base(FrameworkSelection{
		IDs:        []string{testFramework},
		Categories: map[string][]string{"subject": {"science"}, "board": {"CBSE"}},
	}), reqCtx)
	if err != nil {
		t.Fatalf("expected valid framework to pass: %v", err)
	}
	account, _ := fixture.users.Get(ctx, result.UserID)
	if !reflect.DeepEqual(account.Framework["id"], []string{testFramework}) {
		t.Fatalf("expected framework stored, got %#v", account.Framework)
	}
	reads := fixture.frameworks.reads

	if _, err := fixture.svc.CreateUser(ctx, CreateUserRequest{
		Name:      "Other",
		Email:     strPtr("fw2@x.com"),
		Channel:   strPtr(testChannel),
		Framework: &FrameworkSelection{IDs: []string{testFramework}},
	}, reqCtx); err != nil {
		t.Fatalf("second framework create: %v", err)
	}
	if fixture.frameworks.reads != reads {
		t.Fatalf("expected cached taxonomy to be reused, got %d extra reads", fixture.frameworks.reads-reads)
	}
}

func TestServiceCreateUser_FrameworkSetRefreshesOnMiss(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()
	reqCtx := RequestContext{Version: APIVersionV2}
	req := func(email string, frameworkID string) CreateUserRequest {
		return CreateUserRequest{
			Name:      "User",
			Email:     strPtr(email),
			Channel:   strPtr(testChannel),
			Framework: &FrameworkSelection{IDs: []string{frameworkID}},
		}
	}
	if _, err := fixture.svc.CreateUser(ctx, req("one@x.com", testFramework), reqCtx); err != nil {
		t.Fatalf("create: %v", err)
	}
	fixture.frameworks.mu.Lock()
	fixture.frameworks.sets[testHashTag] = []string{testFramework, "fw-2"}
	fixture.frameworks.mu.Unlock()

	if _, err := fixture.svc.CreateUser(ctx, req("two@x.com", "fw-2"), reqCtx); err != nil {
		t.Fatalf("expected refreshed framework set to admit fw-2: %v", err)
	}
}

func TestServiceUpdateUser_RecoveryEmailMatchingStoredEmail(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.users.put(storedAccount("user-1"))

	_, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:        "user-1",
		RecoveryEmail: strPtr("Stored@X.com"),
	}, RequestContext{})
	if ErrorKindOf(err) != KindRecoveryParamsMatch {
		t.Fatalf("expected recovery collision against stored email, got %v", err)
	}

	stored := storedAccount("user-2")
	stored.EmailFingerprint = "fp:old@x.com"
	stored.RecoveryEmailFingerprint = "fp:new@x.com"
	fixture.users.put(stored)
	_, err = fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID: "user-2",
		Email:  strPtr("new@x.com"),
	}, RequestContext{})
	if ErrorKindOf(err) != KindRecoveryParamsMatch {
		t.Fatalf("expected recovery collision against stored recovery email, got %v", err)
	}
}

func TestServiceUpdateUser_MissingOrganisationListsIDs(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.users.put(storedAccount("user-1"))

	_, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:        "user-1",
		Organisations: []MembershipRequest{{OrganisationID: "org-missing"}},
	}, RequestContext{Private: true, RequestedBy: "admin-1"})
	if ErrorKindOf(err) != KindInvalidParameterValue {
		t.Fatalf("expected invalid parameter value, got %v", err)
	}
	if missing := ErrorDetails(err)["missing_ids"]; !reflect.DeepEqual(missing, []string{"org-missing"}) {
		t.Fatalf("expected missing ids, got %#v", missing)
	}
	if fixture.users.updates != 0 {
		t.Fatalf("expected no write before organisations resolve")
	}
}

func TestServiceUpdateUser_AttributeFieldErrorIsNonFatal(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.users.put(storedAccount("user-1"))
	fixture.attributes.result = AttributeSaveResult{Errors: []FieldError{{Field: "school", Message: "unknown school"}}}

	result, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:     "user-1",
		Name:       strPtr("Renamed"),
		Attributes: map[string]any{"school": "x"},
	}, RequestContext{RequestedBy: "admin-1"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Response != ResponseSuccess {
		t.Fatalf("expected SUCCESS, got %q", result.Response)
	}
	if len(result.Errors) != 1 || result.Errors[0].Field != "school" {
		t.Fatalf("expected attribute field error merged, got %#v", result.Errors)
	}
	if fixture.attributes.calls[0] != "user-1:"+OperationUpdate {
		t.Fatalf("unexpected attribute call %#v", fixture.attributes.calls)
	}

	fixture.attributes.err = errors.New("attribute service unavailable")
	result, err = fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:     "user-1",
		Attributes: map[string]any{"school": "y"},
	}, RequestContext{RequestedBy: "admin-1"})
	if err != nil {
		t.Fatalf("expected attribute failure to be non-fatal, got %v", err)
	}
	if result.Errors[len(result.Errors)-1].Field != "attributes" {
		t.Fatalf("expected attribute failure merged, got %#v", result.Errors)
	}
}

func TestServiceUpdateUser_PrivateOrganisationsSync(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.users.put(storedAccount("user-1"))
	fixture.memberships.put(
		OrganizationMembership{ID: "m-root", UserID: "user-1", OrganisationID: testRootOrg, Roles: []string{RolePublic}},
		OrganizationMembership{ID: "m-other", UserID: "user-1", OrganisationID: testOtherOrg, Roles: []string{RolePublic}},
	)
	req := UpdateUserRequest{
		UserID:        "user-1",
		Organisations: []MembershipRequest{{OrganisationID: testSubOrg, Roles: []string{"ORG_ADMIN"}}},
	}
	reqCtx := RequestContext{Private: true, RequestedBy: "admin-1"}

	if _, err := fixture.svc.UpdateUser(context.Background(), req, reqCtx); err != nil {
		t.Fatalf("update: %v", err)
	}
	memberships, _ := fixture.svc.ListMemberships(context.Background(), "user-1")
	active := map[string]bool{}
	for _, row := range memberships {
		active[row.OrganisationID] = !row.Deleted
	}
	if !active[testRootOrg] || !active[testSubOrg] || active[testOtherOrg] {
		t.Fatalf("unexpected membership state %#v", active)
	}

	creates, updates := fixture.memberships.counts()
	if _, err := fixture.svc.UpdateUser(context.Background(), req, reqCtx); err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if c, u := fixture.memberships.counts(); c != creates || u != updates {
		t.Fatalf("expected repeated sync to write nothing")
	}

	_, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:        "user-1",
		Organisations: []MembershipRequest{{OrganisationID: testSubOrg, Roles: []string{"SUPER"}}},
	}, reqCtx)
	if ErrorKindOf(err) != KindInvalidParameterValue {
		t.Fatalf("expected unsupported role rejection, got %v", err)
	}
}

func TestServiceUpdateUser_NonPrivateIgnoresOrganisations(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.users.put(storedAccount("user-1"))
	_, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:        "user-1",
		Organisations: []MembershipRequest{{OrganisationID: "org-missing"}},
	}, RequestContext{})
	if err != nil {
		t.Fatalf("expected organisations ignored outside private mode, got %v", err)
	}
	if creates, updates := fixture.memberships.counts(); creates != 0 || updates != 0 {
		t.Fatalf("expected no membership writes")
	}
}

func TestServiceUpdateUser_UnknownAndPrimaryWriteFailures(t *testing.T) {
	fixture := newServiceFixture(t)
	_, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{UserID: "user-404"}, RequestContext{})
	if ErrorKindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	fixture.users.put(storedAccount("user-1"))
	fixture.users.updateErr = errors.New("connection reset by peer")
	_, err = fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{UserID: "user-1", Name: strPtr("X")}, RequestContext{})
	if ErrorKindOf(err) != KindUpstreamUnavailable {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if len(fixture.publisher.named(EventAccountUpdated)) != 0 {
		t.Fatalf("expected no audit event after failed primary write")
	}
	if len(fixture.index.users) != 0 {
		t.Fatalf("expected no downstream propagation after failed primary write")
	}
}

func TestServiceUpdateUser_ClearsRecoveryAndKeepsVerifiedDefaults(t *testing.T) {
	fixture := newServiceFixture(t)
	stored := storedAccount("user-1")
	stored.EncryptedRecoveryEmail = "enc:cmVjQHguY29t"
	stored.RecoveryEmailFingerprint = "fp:rec@x.com"
	fixture.users.put(stored)

	if _, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:        "user-1",
		RecoveryEmail: strPtr(" "),
	}, RequestContext{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	account, _ := fixture.users.Get(context.Background(), "user-1")
	if account.EncryptedRecoveryEmail != "" || account.RecoveryEmailFingerprint != "" {
		t.Fatalf("expected recovery email cleared, got %#v", account)
	}
	flags := DecodeFlags(account.Flags)
	if !flags.EmailVerified || flags.PhoneVerified || !flags.StateValidated {
		t.Fatalf("unexpected update flags %#v", flags)
	}
	if account.UpdatedBy != "user-1" {
		t.Fatalf("expected self update stamp, got %q", account.UpdatedBy)
	}
}

func TestServiceUpdateUser_TeacherInCustodianRejected(t *testing.T) {
	fixture := newServiceFixture(t)
	stored := storedAccount("user-1")
	stored.RootOrgID = testCustodianRoot
	stored.Channel = testCustodianChannel
	fixture.users.put(stored)

	_, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID:   "user-1",
		UserType: strPtr("Teacher"),
	}, RequestContext{})
	if ErrorKindOf(err) != KindPolicyViolation {
		t.Fatalf("expected policy violation, got %v", err)
	}
}

func TestServiceUpdateUser_AuditPublishFailureIsSwallowed(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.users.put(storedAccount("user-1"))
	fixture.publisher.err = errors.New("outbox down")
	fixture.index.err = errors.New("index down")

	result, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{UserID: "user-1", Name: strPtr("X")}, RequestContext{})
	if err != nil {
		t.Fatalf("expected audit and index failures to be hidden, got %v", err)
	}
	if result.Response != ResponseSuccess {
		t.Fatalf("expected success response, got %#v", result)
	}
}

// Same-user concurrent updates are not serialized here; the store decides
// the winner.
func TestServiceUpdateUser_ConcurrentSameUserIsLastWriteWins(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.users.put(storedAccount("user-1"))

	names := []string{"Alpha", "Beta", "Gamma", "Delta"}
	var wg sync.WaitGroup
	errs := make(chan error, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := fixture.svc.UpdateUser(context.Background(), UpdateUserRequest{UserID: "user-1", Name: strPtr(name)}, RequestContext{})
			errs <- err
		}(name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}
	account, _ := fixture.users.Get(context.Background(), "user-1")
	found := false
	for _, name := range names {
		if account.Name == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected one of the concurrent writes to win, got %q", account.Name)
	}
	if fixture.users.updates != len(names) {
		t.Fatalf("expected every update to reach the store, got %d", fixture.users.updates)
	}
}

func TestServiceDispatchOutbox_RequiresOutboxStore(t *testing.T) {
	fixture := newServiceFixture(t)
	if _, err := fixture.svc.DispatchOutbox(context.Background(), 10); err == nil {
		t.Fatalf("expected error without outbox store")
	}
}

func TestServiceDispatchOutbox_ProjectsCreatedAccount(t *testing.T) {
	outbox := &memoryOutboxStore{}
	fixture := newServiceFixture(t,
		WithOutboxStore(outbox),
		WithEventPublisher(nil),
		WithIndexSyncTrigger(nil),
	)
	activity := &capturingActivitySink{}
	index := &capturingSearchIndex{}
	sender := &capturingSender{}
	fixture.svc.RegisterProjector(ProjectorActivity, NewLifecycleActivityProjector(activity))
	fixture.svc.RegisterProjector(ProjectorIndex, NewIndexProjector(fixture.users, fixture.memberships, index))
	fixture.svc.RegisterProjector(ProjectorNotification, NewOnboardingNotificationProjector(fixture.users, testCipher{}, sender))

	result, err := fixture.svc.CreateUser(context.Background(), CreateUserRequest{
		Name:    "Asha",
		Email:   strPtr("asha@x.com"),
		Channel: strPtr(testChannel),
	}, RequestContext{Version: APIVersionV2, CallerID: "admin-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stats, err := fixture.svc.DispatchOutbox(context.Background(), 0)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Claimed != 3 || stats.Delivered != 3 {
		t.Fatalf("expected index, audit and onboarding events delivered, got %+v", stats)
	}
	if len(activity.entries) != 1 || activity.entries[0].Object != "user:"+result.UserID {
		t.Fatalf("expected one activity entry for the new user, got %#v", activity.entries)
	}
	if len(index.docs) != 1 || index.docs[0].UserID != result.UserID {
		t.Fatalf("expected one index document, got %#v", index.docs)
	}
	if len(index.docs[0].Organisations) != 1 || index.docs[0].Organisations[0] != testRootOrg {
		t.Fatalf("expected root membership in the index document, got %#v", index.docs[0].Organisations)
	}
	if len(sender.requests) != 1 || sender.requests[0].Email != "asha@x.com" {
		t.Fatalf("expected onboarding notification, got %#v", sender.requests)
	}
}
