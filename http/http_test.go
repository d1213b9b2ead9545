package http

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"address":"0xabc"}`))
	b, err := ReadBody(httptest.NewRecorder(), r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := `{"address":"0xabc"}`, string(b); want != have {
		t.Errorf("want %s, have %s", want, have)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("a", 32)))
	_, err = ReadBody(httptest.NewRecorder(), r, 16)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("have %v, want %v", err, ErrBodyTooLarge)
	}
}
