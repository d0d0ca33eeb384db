package response

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ValidationErrorResponse lists the fields that failed validation and the rule each broke
type ValidationErrorResponse struct {
	ValidationErrors map[string]string `json:"validation_errors"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, err error) {
	JSON(w, status, ErrorResponse{
		Error:   errorKind(status),
		Message: err.Error(),
	})
}

// Message sends an error response with a fixed message
func Message(w http.ResponseWriter, status int, msg string) {
	Error(w, status, errors.New(msg))
}

// ValidationErrors sends a 400 listing the failed fields
func ValidationErrors(w http.ResponseWriter, fields map[string]string) {
	JSON(w, http.StatusBadRequest, ValidationErrorResponse{ValidationErrors: fields})
}

func errorKind(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusInternalServerError:
		return "internal_server_error"
	}
	return "error"
}
