// Package domain provides the error types shared by the gateway layers.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a request the gateway refuses to translate.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeMethodNotAllowed indicates an HTTP method the gateway does not forward.
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"

	// ErrorTypeAuthentication indicates an authentication failure.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeUpstream indicates the provider answered with a non-success status.
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypeUnavailable indicates the provider could not be reached.
	ErrorTypeUnavailable ErrorType = "unavailable"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// APIError is an error that is surfaced to the client as an HTTP response.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// StatusCode overrides the status derived from Type when non-zero
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeUpstream, ErrorTypeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrMethodNotAllowed creates a method not allowed error.
func ErrMethodNotAllowed(message string) *APIError {
	return NewAPIError(ErrorTypeMethodNotAllowed, message)
}

// ErrUpstream creates an error carrying the provider's status code.
func ErrUpstream(status int, message string) *APIError {
	return NewAPIError(ErrorTypeUpstream, message).WithStatusCode(status)
}

// ErrUnavailable creates an error for a provider that could not be reached.
func ErrUnavailable(message string) *APIError {
	return NewAPIError(ErrorTypeUnavailable, message)
}

// AsAPIError unwraps err into an *APIError. Errors of any other kind are
// reported as server errors.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewAPIError(ErrorTypeServer, err.Error())
}
