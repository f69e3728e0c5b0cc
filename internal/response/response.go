// Package response implements the standard API envelope used by the
// control-plane HTTP handlers in internal/httpapi.
package response

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the standard envelope returned by every control-plane endpoint.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ValidationError is a structured description of one failed validator rule.
type ValidationError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Input   string `json:"input,omitempty"`
}

func Success(code int, message string, data interface{}) Response {
	return Response{Code: code, Message: message, Data: data}
}

func Error(code int, message string, data interface{}) Response {
	return Response{Code: code, Message: message, Data: data}
}

func OK(message string, data interface{}) Response {
	return Success(200, message, data)
}

func Created(message string, data interface{}) Response {
	return Success(201, message, data)
}

func BadRequest(message string, data interface{}) Response {
	return Error(400, message, data)
}

func NotFound(message string, data interface{}) Response {
	return Error(404, message, data)
}

func Conflict(message string, data interface{}) Response {
	return Error(409, message, data)
}

func InternalServerError(message string, data interface{}) Response {
	return Error(500, message, data)
}

// ParseValidationError extracts the first validator.ValidationErrors entry
// into a structured ValidationError, falling back to a generic wrapper for
// any other error type.
func ParseValidationError(err error) ValidationError {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrors) > 0 {
			ve := validationErrors[0]

			value := ""
			if ve.Value() != nil {
				value = strings.TrimSpace(reflect.ValueOf(ve.Value()).String())
			}

			return ValidationError{
				Key:     ve.Field(),
				Message: ve.Tag(),
				Input:   value,
			}
		}
	}

	return ValidationError{Key: "unknown", Message: err.Error()}
}

// ValidationBadRequest builds a 400 response carrying a structured
// ValidationError derived from a Gin binding failure.
func ValidationBadRequest(err error) Response {
	return BadRequest("validation failed", ParseValidationError(err))
}
