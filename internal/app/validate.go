package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tanmvo/relevance-ai-chat/internal/tripview"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("timeblock", func(fl validator.FieldLevel) bool {
		_, ok := tripview.NormalizeTimeBlock(fl.Field().String())
		return ok
	})
	return v
}

// validationError turns the first failed rule into a bad_request error.
func validationError(surface string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return badRequest(surface, err.Error())
	}
	fe := fieldErrs[0]
	field := fe.Field()
	var message string
	switch fe.Tag() {
	case "required":
		message = field + " is required"
	case "datetime":
		message = field + " must be YYYY-MM-DD format"
	case "timeblock":
		message = field + " must be one of morning, afternoon, night"
	case "oneof":
		message = fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		message = field + " must be a valid URL"
	case "min":
		message = fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		message = fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		message = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
	return badRequest(surface, message)
}
