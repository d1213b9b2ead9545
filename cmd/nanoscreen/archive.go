package main

import (
	"context"
	"fmt"
	"time"

	"github.com/micromdm/nanoscreen/subsystem/archive"
	"github.com/micromdm/nanoscreen/subsystem/archive/ipfs"
	"github.com/micromdm/nanoscreen/subsystem/archive/local"
	"github.com/micromdm/nanoscreen/subsystem/archive/s3"

	"github.com/micromdm/nanolib/log"
)

type archiveConfig struct {
	dir      string
	ipfsAPI  string
	s3Bucket string
	s3Region string
	s3Prefix string
}

// newArchiver configures the acknowledgment archive.
// IPFS and S3 are tried first when configured; the local directory is always available.
func newArchiver(ctx context.Context, logger log.Logger, c *archiveConfig) (*archive.Archiver, error) {
	dir := c.dir
	if dir == "" {
		dir = "acks"
	}
	opts := []archive.Option{archive.WithLogger(logger)}
	if c.ipfsAPI != "" {
		b, err := ipfs.New(c.ipfsAPI, ipfs.DefaultTimeout)
		if err != nil {
			return nil, fmt.Errorf("creating ipfs archive: %w", err)
		}
		opts = append(opts, archive.WithIPFS(b))
	}
	if c.s3Bucket != "" {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		b, err := s3.NewFromConfig(ctx, c.s3Region, c.s3Bucket, c.s3Prefix)
		if err != nil {
			return nil, fmt.Errorf("creating s3 archive: %w", err)
		}
		opts = append(opts, archive.WithS3(b))
	}
	return archive.New(local.New(dir), opts...), nil
}
