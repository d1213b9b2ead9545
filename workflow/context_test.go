package workflow

import "testing"

func TestRequestContext(t *testing.T) {
	a := &Request{Address: "0xabc", Ack: true}
	var cm ContextMarshaler = a

	bin, err := cm.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	if want, have := `{"address":"0xabc","ack":true}`, string(bin); want != have {
		t.Errorf("want %q; have %q", want, have)
	}

	b := new(Request)
	cm = b
	err = cm.UnmarshalBinary(bin)
	if err != nil {
		t.Fatal(err)
	}

	if want, have := *a, *b; want != have {
		t.Errorf("want %v; have %v", want, have)
	}
}
