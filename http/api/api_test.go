package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, errors.New("boom"), 0)
	if want, have := http.StatusInternalServerError, rec.Code; want != have {
		t.Errorf("status: want %d, have %d", want, have)
	}
	if want, have := "{\"error\":\"boom\"}\n", rec.Body.String(); want != have {
		t.Errorf("body: want %q, have %q", want, have)
	}
	if want, have := "application/json", rec.Header().Get("Content-type"); want != have {
		t.Errorf("content type: want %q, have %q", want, have)
	}
}
