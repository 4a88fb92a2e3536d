// Package apperr defines the error taxonomy shared by the service and API
// layers. Services return *Error values; handlers map Kind to an HTTP status
// and a stable error code without leaking which internal check failed.
package apperr

import "fmt"

// Kind classifies an error for transport mapping
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindValidation
	KindRateLimited
)

// Error is a typed application error
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

// Authentication failures are deliberately uniform so callers cannot probe
// which check rejected them.
func Authentication() *Error {
	return &Error{Kind: KindAuthentication, Message: "authentication failed"}
}

func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded"}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", err: err}
}
