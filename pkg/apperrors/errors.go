package apperrors

import "errors"

// Engine error kinds. Handlers and clients branch on these with
// errors.Is; the message prefix is the stable machine-readable code.
var (
	ErrRoleNotPermitted   = errors.New("ROLE_NOT_PERMITTED: role may not perform this action")
	ErrWrongStage         = errors.New("WRONG_STAGE: action is not available in the current stage")
	ErrInvalidTransition  = errors.New("INVALID_TRANSITION: no such transition from the current stage")
	ErrPreconditionFailed = errors.New("PRECONDITION_FAILED: action precondition not satisfied")
	ErrConflict           = errors.New("CONFLICT: request was modified concurrently")
	ErrNotFound           = errors.New("NOT_FOUND: request does not exist")
	ErrTimeout            = errors.New("TIMEOUT: collaborator did not answer in time")
)

// Auth and transport errors.
var (
	ErrEmptyAuthHeader   = errors.New("authorization header is empty")
	ErrInvalidAuthHeader = errors.New("authorization header is malformed")
	ErrInvalidToken      = errors.New("token is invalid")
	ErrTokenExpired      = errors.New("token has expired")
	ErrActorNotInContext = errors.New("actor is not present in request context")
	ErrBadRequest        = errors.New("bad request")
)

// IsRetryable reports whether the caller may safely retry the same
// operation. Only optimistic-concurrency conflicts and collaborator
// timeouts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTimeout)
}

// InvalidInputError is a validation failure with a caller-facing message.
type InvalidInputError struct {
	Message string
}

func NewInvalidInputError(message string) *InvalidInputError {
	return &InvalidInputError{Message: message}
}

func (e *InvalidInputError) Error() string {
	return e.Message
}
