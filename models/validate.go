package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs the validate tags and reports the first failure as a
// *utils.ValidationError naming the offending field.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return utils.NewValidationError("", err)
	}
	fe := fieldErrors[0]
	field := fieldPath(fe.Namespace())
	return &utils.ValidationError{
		Field:  field,
		Reason: reasonFor(fe),
		Err:    sentinelFor(field, fe.Tag()),
	}
}

// drop the root struct name: "NewQuotation.items[0].quantity" -> "items[0].quantity"
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "email":
		return "must be a valid email address"
	}
	return "failed " + fe.Tag() + " check"
}

func sentinelFor(field string, tag string) error {
	switch {
	case strings.HasSuffix(field, "discount_percent"):
		return utils.ErrInvalidDiscount
	case tag == "required" || tag == "min":
		return utils.ErrMissingField
	case (tag == "gt" || tag == "gte") && (strings.HasSuffix(field, "amount") || strings.HasSuffix(field, "unit_price") || strings.HasSuffix(field, "quantity")):
		return utils.ErrInvalidAmount
	}
	return nil
}
