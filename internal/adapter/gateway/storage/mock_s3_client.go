package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MockS3Client is a mock implementation of S3API for testing
// It stores objects in memory and simulates S3 behavior
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string]*mockS3Object // key -> object

	// PutErr, when set, is returned by every PutObject call.
	PutErr error
}

// mockS3Object represents an S3 object stored in memory
type mockS3Object struct {
	content     []byte
	contentType string
	metadata    map[string]string
}

// NewMockS3Client creates a new mock S3 client
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string]*mockS3Object),
	}
}

// PutObject simulates uploading an object to S3
func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutErr != nil {
		return nil, m.PutErr
	}

	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	key := aws.ToString(params.Key)
	m.objects[key] = &mockS3Object{
		content:     content,
		contentType: aws.ToString(params.ContentType),
		metadata:    params.Metadata,
	}

	return &s3.PutObjectOutput{}, nil
}

// ObjectCount returns the number of stored objects (for testing)
func (m *MockS3Client) ObjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// StoredObject retrieves an object for inspection (for testing)
func (m *MockS3Client) StoredObject(key string) ([]byte, map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, exists := m.objects[key]
	if !exists {
		return nil, nil, false
	}
	return obj.content, obj.metadata, true
}
