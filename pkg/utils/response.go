package utils

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"fleet-system/pkg/apperrors"
)

type HttpResponse struct {
	Status  bool        `json:"status"`
	Body    interface{} `json:"body,omitempty"`
	Message string      `json:"message"`
}

// errorStatus maps engine error kinds to HTTP codes. Order matters:
// the first match wins.
var errorStatus = []struct {
	err  error
	code int
}{
	{apperrors.ErrNotFound, http.StatusNotFound},
	{apperrors.ErrRoleNotPermitted, http.StatusForbidden},
	{apperrors.ErrWrongStage, http.StatusConflict},
	{apperrors.ErrInvalidTransition, http.StatusUnprocessableEntity},
	{apperrors.ErrPreconditionFailed, http.StatusUnprocessableEntity},
	{apperrors.ErrConflict, http.StatusConflict},
	{apperrors.ErrTimeout, http.StatusGatewayTimeout},
	{apperrors.ErrEmptyAuthHeader, http.StatusUnauthorized},
	{apperrors.ErrInvalidAuthHeader, http.StatusUnauthorized},
	{apperrors.ErrInvalidToken, http.StatusUnauthorized},
	{apperrors.ErrTokenExpired, http.StatusUnauthorized},
	{apperrors.ErrActorNotInContext, http.StatusUnauthorized},
	{apperrors.ErrBadRequest, http.StatusBadRequest},
}

func SuccessResponse(ctx echo.Context, body interface{}, message string, code int) error {
	return ctx.JSON(code, &HttpResponse{
		Status:  true,
		Body:    body,
		Message: message,
	})
}

func ErrorResponse(ctx echo.Context, err error) error {
	message := err.Error()
	code := http.StatusInternalServerError

	var invalid *apperrors.InvalidInputError
	if errors.As(err, &invalid) {
		code = http.StatusBadRequest
	} else {
		for _, mapping := range errorStatus {
			if errors.Is(err, mapping.err) {
				code = mapping.code
				break
			}
		}
	}

	return ctx.JSON(code, &HttpResponse{
		Status:  false,
		Body:    struct{}{},
		Message: message,
	})
}
