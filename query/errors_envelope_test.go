package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestGetUserMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetUserMessage{}).Validate()
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
}

func TestListActivityQuery_NilReaderReturnsRichError(t *testing.T) {
	var qry *ListActivityQuery
	_, err := qry.Query(context.Background(), ListActivityMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
