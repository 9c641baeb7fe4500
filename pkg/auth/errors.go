package auth

import "net/http"

// Error is an authentication failure. All variants map to 401.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status for the error.
func (e *Error) StatusCode() int {
	return http.StatusUnauthorized
}

// Authentication failures.
var (
	ErrMissingHeader = &Error{Code: "missing_header", Message: "Authorization header required"}
	ErrEmptyToken    = &Error{Code: "empty_token", Message: "Empty token"}
	ErrInvalidFormat = &Error{Code: "invalid_format", Message: "Invalid API key format"}
	ErrInvalidKey    = &Error{Code: "invalid_key", Message: "Invalid API key"}
	ErrExpiredKey    = &Error{Code: "expired_key", Message: "API key expired"}
)
