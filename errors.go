package main

import (
	"encoding/json"
	"log"
	"net/http"
)

// APIError represents a structured API error response. Message is always a
// generic, browser-safe string.
type APIError struct {
	Message string `json:"error"`
	Code    string `json:"error_code,omitempty"`
}

// maxRequestBody caps every JSON request body the portal decodes.
const maxRequestBody = 1 << 20

// decodeJSON reads at most maxRequestBody bytes of JSON from r into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Message: message, Code: code})
}

// writeMessage writes the {"message": ...} acknowledgment used by the relay.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
