package handler

import (
	"encoding/json"
	"net/http"

	"github.com/airwavehq/airwave/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the
// given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the standard denial envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.DenialResponse{Error: message})
}

// readJSON decodes the request body as JSON into v. The body is closed
// after decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
