package services

import (
	"errors"

	"github.com/campusmart/backend/utils"
)

// Kind classifies a service failure. Handlers map kinds to HTTP statuses.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	default:
		return "internal"
	}
}

// Error is returned by every service operation. Message is safe to show to
// clients; Err holds the underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Details utils.Violations
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind and message, so a sentinel still matches after
// a cause has been attached with wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == e.Message
}

var (
	ErrInvalidCredentials     = &Error{Kind: KindAuthentication, Message: "Invalid credentials"}
	ErrMissingRefreshToken    = &Error{Kind: KindAuthentication, Message: "Refresh token missing"}
	ErrUnauthenticated        = &Error{Kind: KindAuthentication, Message: "Authentication required"}
	ErrInvalidRefreshToken    = &Error{Kind: KindAuthorization, Message: "Invalid or expired refresh token"}
	ErrInvalidOrExpiredTicket = &Error{Kind: KindValidation, Message: "Password reset token is invalid or has expired"}
	ErrIncorrectPassword      = &Error{Kind: KindValidation, Message: "Current password is incorrect"}
	ErrEmailTaken             = &Error{Kind: KindConflict, Message: "Email is already registered"}
	ErrIdentifierTaken        = &Error{Kind: KindConflict, Message: "Matric number is already registered"}
	ErrConcurrentUpdate       = &Error{Kind: KindConflict, Message: "Account was modified by another request, please retry"}
)

func validationError(err error) *Error {
	var v utils.Violations
	if errors.As(err, &v) {
		return &Error{Kind: KindValidation, Message: "Validation failed", Details: v}
	}
	return &Error{Kind: KindValidation, Message: "Validation failed", Err: err}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Server error", Err: err}
}

// wrap attaches cause to a copy of a sentinel.
func wrap(sentinel *Error, cause error) *Error {
	e := *sentinel
	e.Err = cause
	return &e
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
