// Package s3 implements the archive backend using Amazon S3.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/micromdm/nanoscreen/subsystem/archive"
)

// API is the subset of the S3 client used by the backend.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store stores documents as <digest>.json objects in a bucket.
type Store struct {
	client API
	bucket string
	prefix string
}

// New creates a new S3 backend using client.
func New(client API, bucket, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("nil s3 client")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	return &Store{
		client: client,
		bucket: bucket,
		prefix: normalizePrefix(prefix),
	}, nil
}

// NewFromConfig creates a new S3 backend using the default AWS config chain.
func NewFromConfig(ctx context.Context, region, bucket, prefix string) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), bucket, prefix)
}

func (s *Store) Name() string { return archive.BackendS3 }

// Put uploads data keyed by digest.
func (s *Store) Put(ctx context.Context, digest string, data []byte) (*archive.Reference, error) {
	objectKey := applyPrefix(s.prefix, digest+".json")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return &archive.Reference{Backend: archive.BackendS3, Hash: digest}, nil
}

// Get downloads the document for ref.
func (s *Store) Get(ctx context.Context, ref *archive.Reference) ([]byte, error) {
	if ref.Hash == "" {
		return nil, fmt.Errorf("%w: missing hash", archive.ErrInvalidRef)
	}
	objectKey := applyPrefix(s.prefix, ref.Hash+".json")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}
