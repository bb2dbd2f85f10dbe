package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is the standard response structure for error replies
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SendError sends an error JSON response
func SendError(w http.ResponseWriter, statusCode int, errorMsg string, message string) {
	respond(w, statusCode, Response{
		Success: false,
		Message: message,
		Error:   errorMsg,
	})
}

// SendNotFound sends a 404 Not Found response
func SendNotFound(w http.ResponseWriter, resource string) {
	SendError(w, http.StatusNotFound, "File not found", resource+" not found")
}

// SendForbidden sends a 403 Forbidden response
func SendForbidden(w http.ResponseWriter, resource string) {
	SendError(w, http.StatusForbidden, "Access denied",
		"No permission to read "+resource)
}

// SendNotImplemented sends a 501 for methods the file server does not support
func SendNotImplemented(w http.ResponseWriter, method string) {
	w.Header().Set("Allow", "GET, HEAD")
	SendError(w, http.StatusNotImplemented,
		fmt.Sprintf("Unsupported method (%q)", method),
		"Only GET and HEAD are supported")
}

// SendInternalServerError sends a 500 Internal Server Error response.
// The error itself is not exposed to the client.
func SendInternalServerError(w http.ResponseWriter) {
	SendError(w, http.StatusInternalServerError,
		"An internal server error occurred",
		"Something went wrong. Please try again later.")
}

// respond is a helper function to send JSON responses
func respond(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)

	if data != nil {
		// Headers are already out; nothing left to report to the client.
		_ = json.NewEncoder(w).Encode(data)
	}
}
