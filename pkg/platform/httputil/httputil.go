// Package httputil centralizes JSON encoding and domain error translation
// for HTTP handlers so every endpoint returns the same envelope.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "crediflow/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
// Internal errors omit the description so infrastructure details never
// leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		body["error_description"] = err.Error()
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// Decode parses the request body into T, writing a bad_request envelope and
// returning ok=false when the body is malformed.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return v, false
	}
	return v, true
}
