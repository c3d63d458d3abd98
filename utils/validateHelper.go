package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs validator tags on trigger payloads before they reach a workflow.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
