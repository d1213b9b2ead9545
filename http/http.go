// Package http includes handlers and utilties.
package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodySize is the default request body limit of ReadBody.
const DefaultMaxBodySize = 1 << 20

var ErrBodyTooLarge = errors.New("request body too large")

// ReadBody reads all of r.Body up to limit bytes.
// A limit less than 1 uses DefaultMaxBodySize.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if limit < 1 {
		limit = DefaultMaxBodySize
	}
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, maxErr.Limit)
	}
	return b, err
}
