package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"      // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized" // Authentication required or rejected
	EFORBIDDEN    = "forbidden"    // Permission denied
	ENOTFOUND     = "not_found"    // Resource not found
	ECONFLICT     = "conflict"     // Resource conflict (e.g., duplicate)
	ERATELIMIT    = "rate_limit"   // Rate limit exceeded
	EINTERNAL     = "internal"     // Internal server error
)

// Authentication failure kinds. They are carried inside *Error values and
// matched with errors.Is; clients only ever see the generic 401.
var (
	// ErrTokenInvalid means the cookie could not be decrypted or its
	// plaintext is not a well-formed token.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired means the expiry embedded in the token has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrUserNotFound means the token names a user the store does not know.
	ErrUserNotFound = errors.New("user not found")

	// ErrCredentialRejected means a login attempt failed the credential check.
	ErrCredentialRejected = errors.New("credential rejected")
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "token.Decode")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// TokenInvalid reports an undecryptable or malformed token. The cause is
// kept for logging; it never reaches the client.
func TokenInvalid(op string, cause error) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: "Authentication required",
		Err:     errors.Join(ErrTokenInvalid, cause),
	}
}

// TokenExpired reports a token whose embedded expiry has passed.
func TokenExpired(op string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: "Authentication required",
		Err:     ErrTokenExpired,
	}
}

// CredentialRejected reports a failed login attempt.
func CredentialRejected(op string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: "Invalid username or password",
		Err:     ErrCredentialRejected,
	}
}

// UserNotFound reports a user id with no matching record.
func UserNotFound(op string, id int64) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("user with ID %d not found", id),
		Err:     ErrUserNotFound,
	}
}
