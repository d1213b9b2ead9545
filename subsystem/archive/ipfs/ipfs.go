// Package ipfs implements the archive backend using an IPFS node's HTTP API.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/micromdm/nanoscreen/subsystem/archive"
)

// DefaultTimeout bounds each request to the IPFS API.
const DefaultTimeout = 10 * time.Second

// Shell is the subset of the IPFS API shell used by the backend.
type Shell interface {
	Add(r io.Reader, options ...shell.AddOpts) (string, error)
	Cat(path string) (io.ReadCloser, error)
}

// IPFS stores documents in IPFS and references them by CID.
type IPFS struct {
	sh Shell
}

// New creates a new IPFS backend for the node API at apiURL (e.g. localhost:5001).
func New(apiURL string, timeout time.Duration) (*IPFS, error) {
	if apiURL == "" {
		return nil, errors.New("empty ipfs api url")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)
	return &IPFS{sh: sh}, nil
}

// NewWithShell creates a new IPFS backend using sh.
func NewWithShell(sh Shell) *IPFS {
	return &IPFS{sh: sh}
}

func (i *IPFS) Name() string { return archive.BackendIPFS }

// Put adds data to IPFS. The digest is not used; IPFS addresses content by CID.
func (i *IPFS) Put(ctx context.Context, _ string, data []byte) (*archive.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cid, err := i.sh.Add(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ipfs add: %w", err)
	}
	return &archive.Reference{Backend: archive.BackendIPFS, CID: cid}, nil
}

// Get fetches the document for ref by CID.
func (i *IPFS) Get(ctx context.Context, ref *archive.Reference) ([]byte, error) {
	if ref.CID == "" {
		return nil, fmt.Errorf("%w: missing cid", archive.ErrInvalidRef)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := i.sh.Cat(ref.CID)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
