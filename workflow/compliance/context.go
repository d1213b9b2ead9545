package compliance

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/micromdm/nanoscreen/subsystem/archive"
	"github.com/micromdm/nanoscreen/subsystem/policy"
	"github.com/micromdm/nanoscreen/workflow"
)

// ScreenFailed is recorded as the screening error when the screening service fails.
const ScreenFailed = "screen_failed"

// Analysis is the policy decision on the screening result.
type Analysis struct {
	Decision  policy.Decision `json:"decision"`
	Rationale string          `json:"rationale,omitempty"`
}

// Certificate is the tamper-evident compliance certificate.
type Certificate struct {
	Address      string `json:"address"`
	Acknowledged bool   `json:"acknowledged"`
	DataHash     string `json:"data_hash"`
}

// Context is the step context passed along the compliance chain.
// Each step fills in its own field and carries the rest forward.
type Context struct {
	Address  string `json:"address"`
	OwnerAck bool   `json:"owner_ack"`

	// Screening is the raw screening result, or {address, error} when screening failed.
	Screening map[string]interface{} `json:"screening,omitempty"`

	Analysis    *Analysis          `json:"analysis,omitempty"`
	AckRef      *archive.Reference `json:"ack_ref,omitempty"`
	AnchorRef   string             `json:"anchor_ref,omitempty"`
	Certificate *Certificate       `json:"certificate,omitempty"`
}

var _ workflow.ContextMarshaler = (*Context)(nil)

// MarshalBinary converts c into JSON.
func (c *Context) MarshalBinary() ([]byte, error) {
	if c == nil {
		return nil, errors.New("nil value")
	}
	return json.Marshal(c)
}

// UnmarshalBinary loads JSON data into c.
// Numbers in the screening result are kept as json.Number.
func (c *Context) UnmarshalBinary(data []byte) error {
	if c == nil {
		return errors.New("nil value")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(c); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after context")
	}
	return nil
}

// ScreeningFailed reports whether the screening step recorded a failure.
func (c *Context) ScreeningFailed() bool {
	if c == nil || c.Screening == nil {
		return false
	}
	s, _ := c.Screening["error"].(string)
	return s == ScreenFailed
}

// hashable returns the portion of c covered by the certificate hash:
// everything except the anchor itself and the certificate.
func (c *Context) hashable() *Context {
	h := *c
	h.AnchorRef = ""
	h.Certificate = nil
	return &h
}
