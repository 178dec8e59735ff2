package core

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestAccountErrorMapper_AssignsStableCodes(t *testing.T) {
	mapped := accountErrorMapper(fmt.Errorf("%w: user-1", ErrUserNotFound))
	if mapped.TextCode != ErrorUserNotFound || mapped.Code != http.StatusNotFound {
		t.Fatalf("expected user not found envelope, got %q/%d", mapped.TextCode, mapped.Code)
	}

	mapped = accountErrorMapper(stderrors.New("pq: duplicate key value violates unique constraint"))
	if mapped.TextCode != ErrorConflict || mapped.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict mapping, got %q/%q", mapped.TextCode, mapped.Category)
	}

	mapped = accountErrorMapper(stderrors.New("dial tcp: connection refused"))
	if ErrorKindOf(mapped) != KindUpstreamUnavailable || mapped.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected upstream unavailable, got %q/%d", mapped.TextCode, mapped.Code)
	}
}

func TestAccountErrorMapper_KeepsRichErrors(t *testing.T) {
	original := newParameterMismatch("channel", "organisation_id", nil)
	mapped := accountErrorMapper(fmt.Errorf("wrapped: %w", original))
	if mapped != original {
		t.Fatalf("expected the rich error to pass through")
	}
	params, _ := ErrorDetails(mapped)["parameters"].([]string)
	if len(params) != 2 || params[0] != "channel" {
		t.Fatalf("expected mismatch parameters, got %#v", ErrorDetails(mapped))
	}
}

func TestErrorKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: stderrors.New("boom"), want: KindInternal},
		{name: "schema", err: newInvalidRequestData("bad", schemaField("name", "required")), want: KindInvalidRequestData},
		{name: "recovery", err: newRecoveryParamsMatch("email", "recovery_email"), want: KindRecoveryParamsMatch},
		{name: "policy", err: newTeacherCustodianPolicyError(testCustodianRoot), want: KindPolicyViolation},
		{name: "conflict", err: newConflict("email", "email already in use"), want: KindConflict},
		{name: "category fallback", err: goerrors.New("gone", goerrors.CategoryNotFound), want: KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorKindOf(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestEnsureAccountErrorEnvelope_FillsDefaults(t *testing.T) {
	err := ensureAccountErrorEnvelope(&goerrors.Error{Category: goerrors.CategoryInternal})
	if err.TextCode != ErrorInternal || err.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected internal envelope %q/%d", err.TextCode, err.Code)
	}
	if err.Message == "" {
		t.Fatalf("expected default internal message")
	}
	if ensureAccountErrorEnvelope(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestSortedUnique(t *testing.T) {
	got := sortedUnique([]string{" b", "a", "", "b", "a "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected result %#v", got)
	}
}
