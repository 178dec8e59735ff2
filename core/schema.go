package core

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

type schemaValidator struct {
	validate *validator.Validate
}

func newSchemaValidator() *schemaValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return validPhone(fl.Field().String())
	})
	return &schemaValidator{validate: validate}
}

func (v *schemaValidator) check(payload any) error {
	if v == nil || v.validate == nil {
		return nil
	}
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return newInvalidRequestData(err.Error())
	}
	fields := make([]goerrors.FieldError, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fields = append(fields, goerrors.FieldError{
			Field:   schemaFieldPath(fieldErr),
			Message: fmt.Sprintf("failed %q validation", fieldErr.Tag()),
		})
	}
	return newInvalidRequestData("invalid request data", fields...)
}

func schemaFieldPath(fieldErr validator.FieldError) string {
	namespace := fieldErr.Namespace()
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return fieldErr.Field()
}

func validPhone(value string) bool {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(value))
	return phonePattern.MatchString(cleaned)
}

// normalizePhone strips separators so equal numbers fingerprint the same.
func normalizePhone(value string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(value))
}
