package customvalidator

import (
	"github.com/go-playground/validator/v10"

	"fleet-system/pkg/apperrors"
)

// CustomValidator plugs go-playground/validator into echo's Validate
// hook. Failures come back as invalid-input errors so the response
// layer renders 400 rather than 500.
type CustomValidator struct {
	validator *validator.Validate
}

func NewCustomValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	return nil
}
