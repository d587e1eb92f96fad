package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormatValidationError renders validator errors as one line sorted by field,
// e.g. "processor.provider must be one of [stripe paypal]; telegram.token is required".
func FormatValidationError(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, describe(fieldPath(err.Namespace()), err))
	}
	sort.Strings(msgs)

	return strings.Join(msgs, "; ")
}

// fieldPath drops the root struct name: "Config.Telegram.Token" -> "telegram.token".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		namespace = rest
	}
	return strings.ToLower(namespace)
}

func describe(field string, err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, err.Param())
	case "numeric":
		return fmt.Sprintf("%s must be a number", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, err.Tag())
	}
}
