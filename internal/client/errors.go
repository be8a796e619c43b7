package client

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError means the backend could not be reached or answered with a
// server failure.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthRequiredError is returned for calls made without a valid session.
type AuthRequiredError struct {
	Op string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("%s: sign in required", e.Op)
}

type NotFoundError struct {
	Op      string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found: %s", e.Op, e.Message)
}

// ValidationError is a write the backend rejected. Forbidden writes are
// reported here too, with Code FORBIDDEN.
type ValidationError struct {
	Op      string
	Code    string
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: rejected (%s): %s", e.Op, e.Code, e.Message)
}

type ConflictError struct {
	Op      string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict: %s", e.Op, e.Message)
}

// FunctionError is a named function that ran and reported failure.
type FunctionError struct {
	Function string
	Message  string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s failed: %s", e.Function, e.Message)
}

// Kind names the taxonomy bucket of err for display.
func Kind(err error) string {
	var (
		transport  *TransportError
		authReq    *AuthRequiredError
		notFound   *NotFoundError
		validation *ValidationError
		conflict   *ConflictError
		function   *FunctionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authReq):
		return "auth_required"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &function):
		return "function"
	case errors.As(err, &transport):
		return "transport"
	default:
		return "unknown"
	}
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Code    string         `json:"code"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

// fromResponse maps a non-2xx answer to the taxonomy.
func fromResponse(op string, status int, body errorBody) error {
	message := body.Error
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized:
		return &AuthRequiredError{Op: op}
	case status == http.StatusNotFound:
		return &NotFoundError{Op: op, Message: message}
	case status == http.StatusConflict:
		return &ConflictError{Op: op, Message: message}
	case body.Code == "FUNCTION_ERROR":
		function, _ := body.Details["function"].(string)
		return &FunctionError{Function: function, Message: message}
	case status >= 400 && status < 500:
		return &ValidationError{Op: op, Code: body.Code, Message: message, Details: body.Details}
	default:
		return &TransportError{Op: op, Status: status, Err: errors.New(message)}
	}
}
