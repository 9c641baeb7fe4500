package proxy

import (
	"fmt"
	"net/http"

	"github.com/goclaw/manifest/pkg/limits"
)

// InternalErrorMessage is the only text clients see for unexpected failures.
const InternalErrorMessage = "Internal proxy error"

// Error types, in the OpenAI error body vocabulary.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeRateLimit      = "rate_limit_exceeded"
	TypeServer         = "server_error"
)

// Error codes.
const (
	CodeInvalidRequest      = "invalid_request"
	CodeLimitExceeded       = "limit_exceeded"
	CodeNoProvider          = "no_provider"
	CodeNoAPIKey            = "no_api_key"
	CodeUnsupportedProvider = "unsupported_provider"
	CodeInternal            = "internal_error"
	CodeUpstreamTooLarge    = "upstream_response_too_large"
)

// Error is a proxy failure with its HTTP mapping. Message is safe to show
// to clients; Err holds the detail for logs.
type Error struct {
	Status  int
	Type    string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...any) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Type:    TypeInvalidRequest,
		Code:    CodeInvalidRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

func limitError(v *limits.Violation) *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Type:    TypeRateLimit,
		Code:    CodeLimitExceeded,
		Message: limits.FormatViolation(*v),
		Err:     &limits.ExceededError{Violation: *v},
	}
}

func resolutionError(code, format string, args ...any) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Type:    TypeInvalidRequest,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func internalError(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Type:    TypeServer,
		Code:    CodeInternal,
		Message: InternalErrorMessage,
		Err:     err,
	}
}
