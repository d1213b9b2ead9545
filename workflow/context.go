package workflow

import (
	"encoding"
	"encoding/json"
	"errors"
)

// ContextMarshaler marshals and unmarshals types to and from byte slices.
// This encapsulates step context types to be passed around and
// stored as binary blobs by components that don't need to care
// about what the contents are (e.g. storage backends or queues).
type ContextMarshaler interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Request is the payload that starts a compliance workflow.
type Request struct {
	Address string `json:"address"`
	Ack     bool   `json:"ack"`
}

// MarshalBinary converts r into JSON.
func (r *Request) MarshalBinary() ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil value")
	}
	return json.Marshal(r)
}

// UnmarshalBinary loads JSON data into r.
func (r *Request) UnmarshalBinary(data []byte) error {
	if r == nil {
		return errors.New("nil value")
	}
	return json.Unmarshal(data, r)
}
