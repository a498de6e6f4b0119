package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, ", ")
}

// Add appends a field error
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// Err returns nil when no errors were collected
func (ve ValidationErrors) Err() error {
	if len(ve) == 0 {
		return nil
	}
	return ve
}

// NewValidationError builds a single-field validation failure
func NewValidationError(field, message string) error {
	return ValidationErrors{{Field: field, Message: message}}
}

// FromBindingError converts a gin binding error into field-level details.
// JSON syntax errors become a single "body" entry.
func FromBindingError(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationErrors{{Field: "body", Message: "Invalid request body"}}
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   lowerFirst(fe.Field()),
			Message: describeTag(fe),
		})
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		switch fe.Kind() {
		case reflect.String:
			return "must have at least " + fe.Param() + " characters"
		case reflect.Slice:
			return "must have at least " + fe.Param() + " items"
		}
		return "must be at least " + fe.Param()
	case "max":
		switch fe.Kind() {
		case reflect.String:
			return "must have at most " + fe.Param() + " characters"
		case reflect.Slice:
			return "must have at most " + fe.Param() + " items"
		}
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ValidateAmount checks a money value is non-negative with at most 2 decimal places
func ValidateAmount(field string, amount decimal.Decimal, allowZero bool) *ValidationError {
	if amount.IsNegative() || (!allowZero && amount.IsZero()) {
		return &ValidationError{Field: field, Message: "must be greater than zero"}
	}
	if !amount.Equal(amount.Round(2)) {
		return &ValidationError{Field: field, Message: "can only have up to 2 decimal places"}
	}
	return nil
}

// RegisterJSONTagNames makes field errors report JSON names instead of Go field names
func RegisterJSONTagNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}
