// Package shared holds response helpers used by every HTTP handler.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "linkage/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a domain error to its HTTP status with a JSON envelope.
func WriteError(w http.ResponseWriter, err error) {
	status := dErrors.HTTPStatus(err)
	WriteJSON(w, status, map[string]string{
		"error": string(dErrors.CodeOf(err)),
	})
}
