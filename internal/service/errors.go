package service

import "errors"

// Error kinds returned by services. Handlers map them to HTTP statuses.
var (
	ErrInvalid   = errors.New("invalid request")
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrTooLarge  = errors.New("payload too large")
)

// Error carries a client facing message together with one of the kinds above
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Invalid(msg string) error   { return &Error{Kind: ErrInvalid, Message: msg} }
func NotFound(msg string) error  { return &Error{Kind: ErrNotFound, Message: msg} }
func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Message: msg} }
func Conflict(msg string) error  { return &Error{Kind: ErrConflict, Message: msg} }
func TooLarge(msg string) error  { return &Error{Kind: ErrTooLarge, Message: msg} }
