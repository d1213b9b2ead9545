// Package api renders JSON API responses.
package api

import (
	"encoding/json"
	"net/http"
)

// JSON encodes v as JSON to w with statusCode.
// A statusCode less than 1 leaves the default (200).
func JSON(w http.ResponseWriter, v interface{}, statusCode int) error {
	w.Header().Set("Content-type", "application/json")
	if statusCode > 0 {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(v)
}

// JSONError encodes err as JSON to w.
// A statusCode less than 1 results in 500.
func JSONError(w http.ResponseWriter, err error, statusCode int) {
	if statusCode < 1 {
		statusCode = http.StatusInternalServerError
	}
	JSON(w, &struct {
		Err string `json:"error"`
	}{Err: err.Error()}, statusCode)
}
