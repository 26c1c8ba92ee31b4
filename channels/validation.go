package channels

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload is matched by every *ValidationError.
var ErrInvalidPayload = errors.New("invalid payload")

type ValidationIssue struct{ Field, Reason string }

// ValidationError lists every problem found in one payload.
type ValidationError struct{ Issues []ValidationIssue }

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return ErrInvalidPayload.Error()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Field+": "+is.Reason)
	}
	return ErrInvalidPayload.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidPayload }

func (e *ValidationError) add(f, r string) {
	e.Issues = append(e.Issues, ValidationIssue{Field: f, Reason: r})
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

var validate = newValidator()

// newValidator reports fields by their wire name (form or json tag) instead of the Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.Split(f.Tag.Get(tag), ",")[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// checkStruct runs the struct tags and folds the failures into ve.
func checkStruct(ve *ValidationError, payload any) {
	err := validate.Struct(payload)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		ve.add("payload", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		ve.add(fe.Field(), reason)
	}
}
