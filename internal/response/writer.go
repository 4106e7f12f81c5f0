package response

import (
	"io"
	"net/http"

	"github.com/dgellow/authgate/internal/log"
)

const (
	textContentType = "text/plain; charset=utf-8"
	htmlContentType = "text/html; charset=utf-8"
)

// WriteText writes a plain text response with the given status code
func WriteText(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", textContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	if message == "" {
		return
	}
	if _, err := io.WriteString(w, message); err != nil {
		log.LogError("Failed to write response: %v", err)
	}
}

// WriteHTML writes an already rendered HTML page
func WriteHTML(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", htmlContentType)
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		log.LogError("Failed to write response: %v", err)
	}
}

// Redirect sends a 302 Found to location
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusFound)
}

// WriteBadRequest writes a 400 with message as the plain text body
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteText(w, http.StatusBadRequest, message)
}

// WriteForbidden writes a 403 with message as the plain text body
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteText(w, http.StatusForbidden, message)
}

// WriteInternalServerError never carries detail; callers log it instead
func WriteInternalServerError(w http.ResponseWriter) {
	WriteText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// WriteNotFound writes an empty 404
func WriteNotFound(w http.ResponseWriter) {
	WriteText(w, http.StatusNotFound, "")
}
