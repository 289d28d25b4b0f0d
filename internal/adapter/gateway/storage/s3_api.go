package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API defines the S3 operations used by S3ArtifactMirror
// This interface allows for mocking in tests without requiring actual S3 connection
type S3API interface {
	// PutObject uploads an object to S3
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Ensure *s3.Client implements S3API
var _ S3API = (*s3.Client)(nil)
