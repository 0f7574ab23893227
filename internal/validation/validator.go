package validation

import (
	"reflect"
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/sneakerstore/internal/orders"
)

// EU sizes with optional half sizes: 36, 42.5, 44 2/3.
var sizePattern = regexp.MustCompile(`^\d{2}( 1/3| 2/3|\.5)?$`)

var hundred = decimal.NewFromInt(100)

// New returns a validator with the shop's custom tags and struct rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report json names in field errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("size", func(fl validatorv10.FieldLevel) bool {
		return sizePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("order_status", func(fl validatorv10.FieldLevel) bool {
		return orders.ValidStatus(fl.Field().String())
	})

	v.RegisterStructValidation(discountStructValidation, DiscountRequest{})
	return v
}

// discountStructValidation checks the value range for the type and the date window.
func discountStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(DiscountRequest)

	if !req.Value.IsPositive() {
		sl.ReportError(req.Value, "discount_value", "Value", "gt_zero", "")
	}
	if req.Type == "percentage" && req.Value.GreaterThan(hundred) {
		sl.ReportError(req.Value, "discount_value", "Value", "max_percent", "100")
	}
	if req.Type == "fixed" && !req.Value.IsInteger() {
		sl.ReportError(req.Value, "discount_value", "Value", "whole_cents", "")
	}
	if req.StartsAt != nil && req.ExpiresAt != nil && !req.ExpiresAt.After(*req.StartsAt) {
		sl.ReportError(req.ExpiresAt, "expires_at", "ExpiresAt", "after_starts_at", "")
	}
}
