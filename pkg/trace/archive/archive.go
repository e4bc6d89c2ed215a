// Package archive uploads finished worker trace files to an S3-compatible
// bucket, keyed by run id and content hash for idempotent re-runs.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the bucket settings.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // custom endpoint for MinIO / LocalStack
	Prefix   string
}

// Uploader pushes trace files to the bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ArchiveDir uploads every worker-*.ndjson file under dir and returns the
// object keys written. Files already present (same content hash) are skipped.
func (u *Uploader) ArchiveDir(ctx context.Context, runID, dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "worker-*.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("archive: glob: %w", err)
	}

	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		key, err := u.upload(ctx, runID, p)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (u *Uploader) upload(ctx context.Context, runID, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("archive: read %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	key := fmt.Sprintf("%s%s/%s-%s", u.prefix, runID, hex.EncodeToString(sum[:8]), filepath.Base(path))

	// Idempotent: skip objects that already exist under this key.
	if _, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}); err == nil {
		return key, nil
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	return key, nil
}
