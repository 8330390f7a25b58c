// Package validation checks request structs against their validate tags.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
)

var validate = newValidator()

// entityIDPattern accepts path segments that stay readable in URIs.
var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._~-]*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return entityIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates s and returns a BadRequest error listing every
// failing field.
func Struct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Var validates a single value against a tag expression.
func Var(name string, value interface{}, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return apperrors.BadRequest("%s", formatFieldError(name, ve[0]))
		}
		return apperrors.BadRequest("%s is invalid", name)
	}
	return nil
}

func formatValidationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperrors.BadRequest("%v", err)
	}
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, formatFieldError(lowerFirst(e.Field()), e))
	}
	return apperrors.BadRequest("%s", strings.Join(msgs, "; "))
}

func formatFieldError(field string, e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be an absolute URL", field)
	case "entityid":
		return fmt.Sprintf("%s must start with a letter or digit and contain only letters, digits and ._~-", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// lowerFirst lowercases the leading capitals of a Go field name:
// DataType becomes dataType and URL becomes url.
func lowerFirst(s string) string {
	r := []rune(s)
	n := 0
	for n < len(r) && unicode.IsUpper(r[n]) {
		n++
	}
	if n > 1 && n < len(r) {
		n--
	}
	for i := 0; i < n; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}
