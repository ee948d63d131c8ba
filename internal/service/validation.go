package service

import (
	"reflect"
	"strings"

	"storefront-service/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func validateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return fromValidator(err)
	}
	return nil
}

type customerFields struct {
	Name    string `json:"customer_name" validate:"max=120"`
	Phone   string `json:"customer_phone" validate:"max=32"`
	Email   string `json:"customer_email" validate:"omitempty,email,max=254"`
	Address string `json:"customer_address" validate:"max=500"`
}

func validateCustomer(c models.Customer) error {
	return validateStruct(customerFields(c))
}
