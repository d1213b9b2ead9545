// Package archive persists acknowledgment documents to content-addressed storage.
//
// Documents are validated, canonically encoded and stored in the first
// backend that accepts them, trying IPFS, then S3, then the local disk.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/micromdm/nanoscreen/log/logkeys"
	"github.com/micromdm/nanoscreen/utils/canon"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	// ErrInvalidDocument is returned when a document fails validation.
	ErrInvalidDocument = errors.New("invalid document")

	ErrNoBackends     = errors.New("no archive backends")
	ErrUnknownBackend = errors.New("unknown backend")
	ErrInvalidRef     = errors.New("invalid reference")
	ErrDigestMismatch = errors.New("stored content does not match reference digest")
)

// Backend names as recorded in references.
const (
	BackendIPFS  = "ipfs"
	BackendS3    = "s3"
	BackendLocal = "local"
)

// Reference locates an archived document.
// IPFS references carry a CID; the others carry the hex SHA-256 digest
// of the canonical document bytes.
type Reference struct {
	Backend string `json:"backend"`
	CID     string `json:"cid,omitempty"`
	Hash    string `json:"hash,omitempty"`
}

// Validate checks the reference has a backend and an identifier.
func (r *Reference) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil", ErrInvalidRef)
	}
	if r.Backend == "" {
		return fmt.Errorf("%w: missing backend", ErrInvalidRef)
	}
	if r.CID == "" && r.Hash == "" {
		return fmt.Errorf("%w: missing cid or hash", ErrInvalidRef)
	}
	return nil
}

// Acknowledgment is an ownership acknowledgment for a screened address.
type Acknowledgment struct {
	Address  string `json:"address" validate:"required,max=256,printascii"`
	OwnerAck bool   `json:"owner_ack"`
}

// Backend stores and fetches canonical document bytes.
type Backend interface {
	// Name returns the backend name recorded in references.
	Name() string

	// Put stores data whose SHA-256 hex digest is digest.
	Put(ctx context.Context, digest string, data []byte) (*Reference, error)

	// Get returns the bytes referenced by ref.
	Get(ctx context.Context, ref *Reference) ([]byte, error)
}

// Archiver validates and stores documents in an ordered list of backends.
// It is safe for concurrent use.
type Archiver struct {
	ipfs     Backend
	s3       Backend
	local    Backend
	validate *validator.Validate
	logger   log.Logger
}

// Option configures the archiver.
type Option func(*Archiver)

// WithLogger sets the archiver logger.
func WithLogger(logger log.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger
	}
}

// WithIPFS sets the first-choice backend.
func WithIPFS(b Backend) Option {
	return func(a *Archiver) {
		a.ipfs = b
	}
}

// WithS3 sets the second-choice backend.
func WithS3(b Backend) Option {
	return func(a *Archiver) {
		a.s3 = b
	}
}

// New creates a new archiver with local as the last-resort backend.
func New(local Backend, opts ...Option) *Archiver {
	a := &Archiver{
		local:    local,
		validate: validator.New(),
		logger:   log.NopLogger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// backends returns the configured backends in the order they are tried.
func (a *Archiver) backends() (backends []Backend) {
	for _, b := range []Backend{a.ipfs, a.s3, a.local} {
		if b != nil {
			backends = append(backends, b)
		}
	}
	return
}

// Store validates doc and stores it in the first available backend.
// Validation failures are returned immediately without trying any backend.
// An error is returned only if every backend fails.
func (a *Archiver) Store(ctx context.Context, doc *Acknowledgment) (*Reference, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if err := a.validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	data, digest, err := canon.Hash(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}

	backends := a.backends()
	if len(backends) < 1 {
		return nil, ErrNoBackends
	}

	logger := ctxlog.Logger(ctx, a.logger)
	for i, b := range backends {
		ref, err := b.Put(ctx, digest, data)
		if err == nil {
			logger.Debug(
				logkeys.Message, "archived document",
				logkeys.Backend, b.Name(),
			)
			return ref, nil
		}
		if i == len(backends)-1 {
			return nil, fmt.Errorf("storing in %s: %w", b.Name(), err)
		}
		logger.Info(
			logkeys.Message, "archive backend unavailable",
			logkeys.Backend, b.Name(),
			logkeys.Error, err,
		)
	}
	// not reached
	return nil, ErrNoBackends
}

// Resolve returns the stored bytes for ref.
// Digest references are checked against the content.
func (a *Archiver) Resolve(ctx context.Context, ref *Reference) ([]byte, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	var backend Backend
	for _, b := range a.backends() {
		if b.Name() == ref.Backend {
			backend = b
			break
		}
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, ref.Backend)
	}
	data, err := backend.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", ref.Backend, err)
	}
	if ref.Hash != "" && canon.Digest(data) != ref.Hash {
		return nil, ErrDigestMismatch
	}
	return data, nil
}
