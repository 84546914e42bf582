// Package validate wraps go-playground/validator with the rules the
// Student model needs and turns validator output into field messages a
// client can read.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/student-manager/internal/types"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// Now is the clock used by the "past" rule.
var Now = time.Now

var (
	once     sync.Once
	instance *validator.Validate
)

// Error is returned when a value fails one or more rules.
// Details holds one message per failing field, in struct order.
type Error struct {
	Details []string
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Details, ", ")
}

// Struct validates v and returns *Error on failure.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return &Error{Details: Messages(verrs)}
}

// Messages converts each validator.FieldError into a plain English sentence.
func Messages(errs validator.ValidationErrors) []string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		field := e.Field()
		switch e.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "email":
			msgs = append(msgs, "Please provide a valid email address")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "past":
			msgs = append(msgs, fmt.Sprintf("%s must be in the past", field))
		case "phone":
			msgs = append(msgs, "Phone number must be valid")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return msgs
}

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New()

		// Report fields by their JSON name so messages match the payload.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})

		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(types.Date); ok {
				return d.Time()
			}
			return nil
		}, types.Date{})

		// Registration only fails on an empty tag name or nil func.
		_ = v.RegisterValidation("past", isPast)
		_ = v.RegisterValidation("phone", isPhone)

		instance = v
	})
	return instance
}

func isPast(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	today := types.NewDate(Now()).Time()
	return t.Before(today)
}

func isPhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(fl.Field().String())
}
