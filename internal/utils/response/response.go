// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Success responses may return any JSON shape (a student, a list, a page…).
// Error responses always look like:
//
//	{ "status": 404, "message": "Student not found with id: 7", "timestamp": 1714550400000 }
//
// and, for validation failures, carry one entry per failing field in
// "details".
package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse is the envelope returned for every error.
type ErrorResponse struct {
	Status    int      `json:"status"`
	Message   string   `json:"message"`
	Timestamp int64    `json:"timestamp"`
	Details   []string `json:"details,omitempty"`
}

// Now is the clock used for ErrorResponse.Timestamp.
var Now = time.Now

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// NoContent writes a bare status with no body, e.g. 204 after a delete.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// NewError builds an ErrorResponse stamped with the current time.
func NewError(status int, message string, details ...string) ErrorResponse {
	return ErrorResponse{
		Status:    status,
		Message:   message,
		Timestamp: Now().UnixMilli(),
		Details:   details,
	}
}

// Error writes an ErrorResponse with the given status.
func Error(w http.ResponseWriter, status int, message string, details ...string) {
	_ = WriteJSON(w, status, NewError(status, message, details...))
}
