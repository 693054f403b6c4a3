// Package validation registers the request validation rules used by gin
// binding and translates binding failures into response field errors.
//
// Custom tags:
//
//	orgname         starts with a letter, then letters, digits or underscores
//	strongpassword  at least one upper-case letter, one lower-case letter and one digit
//	passwordbytes   at most auth.MaxPasswordBytes bytes, the bcrypt input limit
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/org-management/org-service/internal/api/response"
	"github.com/org-management/org-service/internal/auth"
)

// Locations prefixed to field names, matching where the value was read from.
const (
	LocationBody  = "body"
	LocationQuery = "query"
)

var orgNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

const orgNameMessage = "Organization name must start with a letter and contain only alphanumeric characters and underscores"

var registerOnce sync.Once

// Register installs the custom tags and the json/form field naming on gin's
// default validator. It is safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			panic("validation: gin binding engine is not go-playground/validator")
		}
		v.RegisterTagNameFunc(fieldName)
		_ = v.RegisterValidation("orgname", func(fl validator.FieldLevel) bool {
			return ValidOrganizationName(fl.Field().String())
		})
		_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
			return passwordProblem(fl.Field().String()) == ""
		})
		_ = v.RegisterValidation("passwordbytes", func(fl validator.FieldLevel) bool {
			return len(fl.Field().String()) <= auth.MaxPasswordBytes
		})
	})
}

// fieldName reports the json name of a struct field, falling back to its form name.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// ValidOrganizationName reports whether name matches the organization name pattern.
func ValidOrganizationName(name string) bool {
	return orgNamePattern.MatchString(name)
}

func passwordProblem(password string) string {
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !upper:
		return "Password must contain at least one uppercase letter"
	case !lower:
		return "Password must contain at least one lowercase letter"
	case !digit:
		return "Password must contain at least one digit"
	}
	return ""
}

// FieldErrors converts a gin binding error into field errors. location is
// LocationBody or LocationQuery.
func FieldErrors(err error, location string) []response.FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]response.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, translate(fe, location))
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		return []response.FieldError{{Field: location, Message: "Field required", Type: "missing"}}
	case errors.As(err, &typeErr):
		field := location
		if typeErr.Field != "" {
			field += "." + typeErr.Field
		}
		return []response.FieldError{{
			Field:   field,
			Message: fmt.Sprintf("Input should be a valid %s", typeErr.Type.Kind()),
			Type:    "type_error",
		}}
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return []response.FieldError{{Field: location, Message: "JSON decode error", Type: "json_invalid"}}
	}
	return []response.FieldError{{Field: location, Message: err.Error(), Type: "value_error"}}
}

func translate(fe validator.FieldError, location string) response.FieldError {
	out := response.FieldError{Field: location + "." + fe.Field()}
	switch fe.Tag() {
	case "required":
		out.Message, out.Type = "Field required", "missing"
	case "min":
		out.Message = fmt.Sprintf("String should have at least %s characters", fe.Param())
		out.Type = "string_too_short"
	case "max":
		out.Message = fmt.Sprintf("String should have at most %s characters", fe.Param())
		out.Type = "string_too_long"
	case "email":
		out.Message = "value is not a valid email address"
		out.Type = "value_error"
	case "orgname":
		out.Message, out.Type = orgNameMessage, "value_error"
	case "strongpassword":
		value, _ := fe.Value().(string)
		out.Message, out.Type = passwordProblem(value), "value_error"
	case "passwordbytes":
		out.Message = fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes)
		out.Type = "string_too_long"
	default:
		out.Message = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		out.Type = "value_error"
	}
	return out
}
