package utils

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their json name so errors match the request body
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func Validate[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, ToValidationError(err)
	}

	return value, nil
}

// ToValidationError converts the first validator failure into a
// ValidationError naming the offending field. Other errors pass through.
func ToValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := fieldPath(fe.Namespace())

	var verr *fennelerrors.ValidationError
	switch fe.Tag() {
	case "required":
		verr = fennelerrors.NewValidationErrorf("%s is required", field)
	case "max":
		verr = fennelerrors.NewValidationErrorf("%s must be at most %s characters", field, fe.Param())
	case "min":
		verr = fennelerrors.NewValidationErrorf("%s must be at least %s", field, fe.Param())
	default:
		verr = fennelerrors.NewValidationErrorf("%s failed rule '%s'", field, fe.Tag())
	}
	return verr.AddField(field)
}

// fieldPath drops the root struct name from a validator namespace:
// "ReconcileRequest.mock_data[n1][0].name" -> "mock_data[n1][0].name".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
