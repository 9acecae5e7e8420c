package http_errors

import (
	"net/http"

	"github.com/go-errors/errors"
)

// ErrorResponse is an error carrying an HTTP status and a machine readable
// code, e.g. "MONGO_NO_DOCUMENTS_FOUND" or "RELATION_NOT_FOUND".
type ErrorResponse struct {
	Message   string `json:"message"`
	Code      int    `json:"code"`
	ErrorCode string `json:"errorCode,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// NewErrorResponse builds an ErrorResponse. Only the first detail is kept.
func NewErrorResponse(status int, errorCode string, message string, details ...any) *ErrorResponse {
	response := &ErrorResponse{
		Message:   message,
		Code:      status,
		ErrorCode: errorCode,
	}
	if len(details) > 0 {
		response.Details = details[0]
	}
	return response
}

func BadRequestErrorWithCode(errorCode string, message string, details ...any) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, errorCode, message, details...)
}

func NotFoundErrorWithCode(errorCode string, message string, details ...any) *ErrorResponse {
	return NewErrorResponse(http.StatusNotFound, errorCode, message, details...)
}

func InternalServerErrorWithCode(errorCode string, message string, details ...any) *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, errorCode, message, details...)
}

// IsErrorCode reports whether err, or any error it wraps, is an
// *ErrorResponse carrying errorCode.
func IsErrorCode(err error, errorCode string) bool {
	var response *ErrorResponse
	return errors.As(err, &response) && response.ErrorCode == errorCode
}
