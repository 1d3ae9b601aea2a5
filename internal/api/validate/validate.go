// Package validate checks request payloads with struct tags and reports
// failures per JSON field.
package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/spec-kit/case-service/internal/domain"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

// Validate is shared across requests.
var Validate *validator.Validate

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())
	Validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = Validate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return domain.Severity(fl.Field().String()).Valid()
	})
	_ = Validate.RegisterValidation("case_status", func(fl validator.FieldLevel) bool {
		return domain.CaseStatus(fl.Field().String()).Valid()
	})
	// an empty owner id in a patch means unassign
	_ = Validate.RegisterValidation("uuid_or_empty", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		if id == "" {
			return true
		}
		_, err := uuid.Parse(id)
		return err == nil
	})
}

// Struct validates v and converts failures into a ValidationError whose
// details map each JSON field to the rule it broke.
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = describe(fe)
	}
	return apperrors.NewValidationError("request validation failed", details)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "severity":
		return "must be one of CRITICAL, HIGH, NORMAL, LOW"
	case "case_status":
		return "is not a known case status"
	case "uuid":
		return "must be a UUID"
	case "uuid_or_empty":
		return "must be a UUID, or empty to unassign"
	}
	return "failed " + fe.Tag() + " check"
}
