package dto

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"pestctl/internal/core/entity"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator:
//
//	decimal_gt0   decimal strictly greater than zero
//	decimal_gte0  decimal not negative
//	location_kind one of COMPANY, BRANCH, TECHNICIAN, WAREHOUSE (any case)
//
// Field names in validation errors are taken from json/form tags.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})

		// Validate decimals through their string form.
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})

		_ = v.RegisterValidation("decimal_gt0", decimalCmp(func(d decimal.Decimal) bool { return d.IsPositive() }))
		_ = v.RegisterValidation("decimal_gte0", decimalCmp(func(d decimal.Decimal) bool { return !d.IsNegative() }))
		_ = v.RegisterValidation("location_kind", func(fl validator.FieldLevel) bool {
			_, err := entity.ParseLocationKind(fl.Field().String())
			return err == nil
		})
	})
}

func decimalCmp(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ok(d)
	}
}
