package command

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestCreateUserMessage_ValidateReturnsRichError(t *testing.T) {
	err := (CreateUserMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorInvalidRequestData {
		t.Fatalf("expected %q text code, got %q", core.ErrorInvalidRequestData, rich.TextCode)
	}
	if core.ErrorKindOf(err) != core.KindInvalidRequestData {
		t.Fatalf("expected invalid request kind, got %q", core.ErrorKindOf(err))
	}
}

func TestDispatchOutboxMessage_NegativeBatchIsBadInput(t *testing.T) {
	err := (DispatchOutboxMessage{BatchSize: -5}).Validate()
	if core.ErrorKindOf(err) != core.KindInvalidParameterValue {
		t.Fatalf("expected invalid parameter kind, got %q", core.ErrorKindOf(err))
	}
}

func TestCreateUserCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CreateUserCommand
	err := cmd.Execute(context.Background(), CreateUserMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
