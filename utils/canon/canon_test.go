package canon

import "testing"

func TestCanonicalize(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{`{"b":1,"a":2}`, `{"a":2,"b":1}`},
		{"{ \"a\" : [ 1, 2.50 ] ,\n \"c\": {\"z\":true,\"y\":null}}", `{"a":[1,2.50],"c":{"y":null,"z":true}}`},
		{`{"html":"<a&b>"}`, `{"html":"<a&b>"}`},
		{`"x"`, `"x"`},
	} {
		have, err := Canonicalize([]byte(tc.in))
		if err != nil {
			t.Fatal(err)
		}
		if want := tc.want; string(have) != want {
			t.Errorf("have %s, want %s", have, want)
		}
	}
}

func TestCanonicalizeInvalid(t *testing.T) {
	if _, err := Canonicalize([]byte(`{"a":`)); err == nil {
		t.Error("expected error")
	}
}

func TestHashIdempotent(t *testing.T) {
	type doc struct {
		Address  string `json:"address"`
		OwnerAck bool   `json:"owner_ack"`
	}
	b1, h1, err := Hash(&doc{Address: "0xabc", OwnerAck: true})
	if err != nil {
		t.Fatal(err)
	}
	// same content as a map with a different construction order
	b2, h2, err := Hash(map[string]interface{}{"owner_ack": true, "address": "0xabc"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Errorf("canonical bytes differ: %s vs %s", b1, b2)
	}
	if h1 != h2 {
		t.Errorf("digests differ: %s vs %s", h1, h2)
	}
	if want, have := 64, len(h1); want != have {
		t.Errorf("digest length: want %d, have %d", want, have)
	}
}

func TestDigest(t *testing.T) {
	// sha256 of the empty string
	if want, have := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Digest(nil); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
}
