package httputil

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("dpositive", validateDecimalPositive)
	v.RegisterValidation("dnonneg", validateDecimalNonNegative)
	return v
}

// Validate validates a struct using go-playground/validator
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.BadRequest(err.Error())
		}
		details := make(map[string]string)

		for _, e := range validationErrors {
			details[e.Field()] = formatValidationError(e)
		}

		return errors.Validation(details)
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "dpositive":
		return "must be greater than zero"
	case "dnonneg":
		return "must not be negative"
	default:
		return "invalid value"
	}
}

func decimalField(fl validator.FieldLevel) (decimal.Decimal, bool) {
	field := fl.Field()
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			// absent optional quantities are handled by required/omitempty
			return decimal.Zero, false
		}
		field = field.Elem()
	}
	d, ok := field.Interface().(decimal.Decimal)
	return d, ok
}

func validateDecimalPositive(fl validator.FieldLevel) bool {
	d, ok := decimalField(fl)
	if !ok {
		return true
	}
	return d.IsPositive()
}

func validateDecimalNonNegative(fl validator.FieldLevel) bool {
	d, ok := decimalField(fl)
	if !ok {
		return true
	}
	return !d.IsNegative()
}
