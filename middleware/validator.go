package middleware

import (
	"strings"

	"buddy-vitality-service/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("appearance", func(fl validator.FieldLevel) bool {
		return models.Appearance(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// ValidateStruct is used inside handlers.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
