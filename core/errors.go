package core

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorInvalidRequestData                = "INVALID_REQUEST_DATA"
	ErrorInvalidParameterValue             = "INVALID_PARAMETER_VALUE"
	ErrorParameterMismatch                 = "PARAMETER_MISMATCH"
	ErrorConflict                          = "CONFLICT"
	ErrorRecoveryParamsMatch               = "RECOVERY_PARAMS_MATCH"
	ErrorTeacherCannotBelongToCustodianOrg = "TEACHER_CANNOT_BELONG_TO_CUSTODIAN_ORG"
	ErrorUpstreamUnavailable               = "UPSTREAM_UNAVAILABLE"
	ErrorUserNotFound                      = "USER_NOT_FOUND"
	ErrorInternal                          = "ACCOUNTS_INTERNAL_ERROR"
)

type ErrorKind string

const (
	KindInvalidRequestData    ErrorKind = "InvalidRequestData"
	KindInvalidParameterValue ErrorKind = "InvalidParameterValue"
	KindParameterMismatch     ErrorKind = "ParameterMismatch"
	KindConflict              ErrorKind = "Conflict"
	KindRecoveryParamsMatch   ErrorKind = "RecoveryParamsMatchException"
	KindPolicyViolation       ErrorKind = "PolicyViolation"
	KindUpstreamUnavailable   ErrorKind = "UpstreamUnavailable"
	KindNotFound              ErrorKind = "NotFound"
	KindInternal              ErrorKind = "Internal"
)

var ErrUserNotFound = errors.New("core: user not found")

var textCodeKinds = map[string]ErrorKind{
	ErrorInvalidRequestData:                KindInvalidRequestData,
	ErrorInvalidParameterValue:             KindInvalidParameterValue,
	ErrorParameterMismatch:                 KindParameterMismatch,
	ErrorConflict:                          KindConflict,
	ErrorRecoveryParamsMatch:               KindRecoveryParamsMatch,
	ErrorTeacherCannotBelongToCustodianOrg: KindPolicyViolation,
	ErrorUpstreamUnavailable:               KindUpstreamUnavailable,
	ErrorUserNotFound:                      KindNotFound,
	ErrorInternal:                          KindInternal,
}

// ErrorKindOf classifies err into one of the account error kinds.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindInternal
	}
	if kind, ok := textCodeKinds[strings.TrimSpace(richErr.TextCode)]; ok {
		return kind
	}
	switch richErr.Category {
	case goerrors.CategoryBadInput:
		return KindInvalidParameterValue
	case goerrors.CategoryValidation:
		return KindInvalidRequestData
	case goerrors.CategoryConflict:
		return KindConflict
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryExternal:
		return KindUpstreamUnavailable
	default:
		return KindInternal
	}
}

// ErrorDetails returns the metadata attached to an account error.
func ErrorDetails(err error) map[string]any {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return map[string]any{}
	}
	return copyMap(richErr.Metadata)
}

func newInvalidRequestData(message string, fields ...goerrors.FieldError) *goerrors.Error {
	return ensureAccountErrorEnvelope(
		goerrors.NewValidation(message, fields...).
			WithTextCode(ErrorInvalidRequestData),
	)
}

func newInvalidParameterValue(message string, metadata map[string]any) *goerrors.Error {
	return newAccountError(message, goerrors.CategoryBadInput, ErrorInvalidParameterValue, metadata)
}

func newParameterMismatch(first string, second string, metadata map[string]any) *goerrors.Error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["parameters"] = []string{first, second}
	return newAccountError(
		"mismatch of "+first+" and "+second,
		goerrors.CategoryBadInput,
		ErrorParameterMismatch,
		metadata,
	)
}

func newConflict(field string, message string) *goerrors.Error {
	return newAccountError(message, goerrors.CategoryConflict, ErrorConflict, map[string]any{"field": field})
}

func newRecoveryParamsMatch(primary string, recovery string) *goerrors.Error {
	return newAccountError(
		primary+" and "+recovery+" must not be the same",
		goerrors.CategoryBadInput,
		ErrorRecoveryParamsMatch,
		map[string]any{"fields": []string{primary, recovery}},
	)
}

func newTeacherCustodianPolicyError(rootOrgID string) *goerrors.Error {
	return newAccountError(
		"a teacher cannot belong to the custodian organisation",
		goerrors.CategoryBadInput,
		ErrorTeacherCannotBelongToCustodianOrg,
		map[string]any{"root_org_id": rootOrgID},
	)
}

func newUpstreamUnavailable(err error, message string) *goerrors.Error {
	if err == nil {
		return nil
	}
	wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithTextCode(ErrorUpstreamUnavailable)
	return ensureAccountErrorEnvelope(wrapped)
}

func newInternal(err error, message string) *goerrors.Error {
	if err == nil {
		return nil
	}
	return ensureAccountErrorEnvelope(
		goerrors.Wrap(err, goerrors.CategoryInternal, message).WithTextCode(ErrorInternal),
	)
}

func newAccountError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return ensureAccountErrorEnvelope(err)
}

func accountErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureAccountErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrUserNotFound) {
		return newAccountError(err.Error(), goerrors.CategoryNotFound, ErrorUserNotFound, nil)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "duplicate key"):
		return newAccountError(err.Error(), goerrors.CategoryConflict, ErrorConflict, nil)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "timeout"), strings.Contains(msg, "unavailable"):
		return newUpstreamUnavailable(err, "upstream dependency unavailable")
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newAccountError(err.Error(), goerrors.CategoryBadInput, ErrorInvalidParameterValue, nil)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureAccountErrorEnvelope(mapped)
}

func ensureAccountErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = accountHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultAccountTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultAccountTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryValidation:
		return ErrorInvalidRequestData
	case goerrors.CategoryBadInput:
		return ErrorInvalidParameterValue
	case goerrors.CategoryNotFound:
		return ErrorUserNotFound
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal:
		return ErrorUpstreamUnavailable
	default:
		return ErrorInternal
	}
}

func accountHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
