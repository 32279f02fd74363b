package api

import (
	"encoding/json"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
)

// APIError is a structured error with a type, the offending parameter
// (when there is one), and a human-readable message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse is the JSON body of an error reply. The web client reads
// the message from the top-level "error" string.
type ErrorResponse struct {
	Error *APIError
}

type errorResponseJSON struct {
	Error string    `json:"error"`
	Type  ErrorType `json:"type"`
	Param string    `json:"param,omitempty"`
}

// MarshalJSON flattens the error into {"error": msg, "type": t, "param": p}.
func (r ErrorResponse) MarshalJSON() ([]byte, error) {
	if r.Error == nil {
		return json.Marshal(errorResponseJSON{Type: ErrorTypeServerError})
	}
	return json.Marshal(errorResponseJSON{
		Error: r.Error.Message,
		Type:  r.Error.Type,
		Param: r.Error.Param,
	})
}

// UnmarshalJSON reads the flattened form written by MarshalJSON.
func (r *ErrorResponse) UnmarshalJSON(data []byte) error {
	var raw errorResponseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Error = &APIError{Type: raw.Type, Param: raw.Param, Message: raw.Error}
	return nil
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Param: param, Message: message}
}

// NewNotFoundError creates an APIError for missing resources.
func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// NewServerError creates an APIError for internal failures.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}

// NewModelError creates an APIError for failures of the chat backend.
func NewModelError(message string) *APIError {
	return &APIError{Type: ErrorTypeModelError, Message: message}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{Type: ErrorTypeTooManyRequests, Message: message}
}

// NewUnauthorizedError creates an APIError for rejected credentials.
func NewUnauthorizedError(message string) *APIError {
	return &APIError{Type: ErrorTypeUnauthorized, Message: message}
}
