package services

import "errors"

// ErrUnauthenticated is returned when a request carries no valid token.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when an authenticated actor is not permitted to
// perform an operation. Role failures and ownership failures are not
// distinguished.
var ErrForbidden = errors.New("forbidden")

// ValidationError carries field-keyed messages for input the client must fix.
// Invalid credentials are reported through it as an error on the email field
// so that a failed lookup and a failed password check are indistinguishable.
type ValidationError struct {
	Errors map[string][]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

func newValidationError() *ValidationError {
	return &ValidationError{Errors: map[string][]string{}}
}

func (e *ValidationError) add(field, message string) {
	e.Errors[field] = append(e.Errors[field], message)
}

func (e *ValidationError) any() bool {
	return len(e.Errors) > 0
}

func fieldError(field, message string) *ValidationError {
	err := newValidationError()
	err.add(field, message)
	return err
}
