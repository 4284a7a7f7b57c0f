// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		return IsValidAmount(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register amount validation: %v", err))
	}
	return v
}

// Struct проверяет структуру по тегам validate.
func Struct(s any) error {
	return validate.Struct(s)
}

// IsValidAmount проверяет, что сумма положительная и содержит не больше двух знаков после точки.
func IsValidAmount(amount string) bool {
	if !amountPattern.MatchString(amount) {
		return false
	}
	v, err := strconv.ParseFloat(amount, 64)
	return err == nil && v > 0
}
