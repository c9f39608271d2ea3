package webkit

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/giantswarm/webkit/server"
)

var (
	// ErrInvalidConfig is returned for an unusable toolkit configuration.
	ErrInvalidConfig = errors.New("invalid toolkit configuration")

	// ErrTemplateNotFound is returned when a template file cannot be read.
	ErrTemplateNotFound = errors.New("template not found")
)

// statusForError maps an OAuth error code to the HTTP status of a JSON
// error response.
func statusForError(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case server.ErrorCodeServerError:
		return http.StatusInternalServerError
	case server.ErrorCodeAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// writeJSON encodes body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes an OAuth JSON error with its standard description.
func writeError(w http.ResponseWriter, code string) {
	writeJSON(w, statusForError(code), ErrorResponse{
		Error:            code,
		ErrorDescription: server.ErrorDescription(code),
	})
}
