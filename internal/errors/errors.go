package errors

import "net/http"

// APIError is the error shape returned by the HTTP layer.
type APIError struct {
	Status   int    `json:"-"`
	Message  string `json:"error"`
	Internal error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Internal
}

func newAPIError(status int, message string, err error) *APIError {
	return &APIError{Status: status, Message: message, Internal: err}
}

func BadRequest(message string, err error) *APIError {
	return newAPIError(http.StatusBadRequest, message, err)
}

func Unauthorized(message string, err error) *APIError {
	return newAPIError(http.StatusUnauthorized, message, err)
}

func Forbidden(message string, err error) *APIError {
	return newAPIError(http.StatusForbidden, message, err)
}

func NotFound(message string, err error) *APIError {
	return newAPIError(http.StatusNotFound, message, err)
}

func Conflict(message string, err error) *APIError {
	return newAPIError(http.StatusConflict, message, err)
}

func UnprocessableEntity(message string, err error) *APIError {
	return newAPIError(http.StatusUnprocessableEntity, message, err)
}

func Internal(err error) *APIError {
	return newAPIError(http.StatusInternalServerError, "Internal server error", err)
}

// NewValidationError wraps gin binding errors as 422
func NewValidationError(err error) *APIError {
	return newAPIError(http.StatusUnprocessableEntity, "Validation failed", err)
}
