package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wassup-/textpod/internal/application/port/output"
)

// S3ArtifactMirror implements ArtifactMirror using AWS S3.
// Bucket layout: s3://<bucket>/<prefix>/artifacts/<relative-path>
// where <relative-path> is the artifact path under the attachments root.
type S3ArtifactMirror struct {
	client S3API // Use interface for testability
	bucket string
	prefix string // Optional prefix for all keys (e.g. "textpod/prod")
}

// S3MirrorConfig holds S3 mirror configuration
type S3MirrorConfig struct {
	Bucket string // S3 bucket name
	Prefix string // Optional key prefix
	Region string // AWS region (optional, uses default if empty)
}

// NewS3ArtifactMirror creates a mirror backed by a real S3 client.
func NewS3ArtifactMirror(cfg S3MirrorConfig) (*S3ArtifactMirror, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}

	return &S3ArtifactMirror{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// NewS3ArtifactMirrorWithClient creates a mirror with a custom S3 client.
// This is primarily used for testing with mock S3 clients.
func NewS3ArtifactMirrorWithClient(client S3API, bucket, prefix string) *S3ArtifactMirror {
	return &S3ArtifactMirror{client: client, bucket: bucket, prefix: prefix}
}

var _ output.ArtifactMirror = (*S3ArtifactMirror)(nil)

// Mirror uploads one artifact copy and returns its s3:// location.
func (m *S3ArtifactMirror) Mirror(ctx context.Context, req output.MirrorRequest) (string, error) {
	if req.Key == "" {
		return "", fmt.Errorf("mirror request has no key")
	}

	key := m.buildKey("artifacts", path.Clean(strings.TrimPrefix(req.Key, "/")))

	s3Metadata := map[string]string{
		"mirrored-at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range req.Metadata {
		s3Metadata[k] = v
	}

	input := &s3.PutObjectInput{
		Bucket:   aws.String(m.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(req.Content),
		Metadata: s3Metadata,
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	if _, err := m.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}

// buildKey builds an S3 key with the configured prefix
func (m *S3ArtifactMirror) buildKey(parts ...string) string {
	if m.prefix != "" {
		parts = append([]string{m.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}
