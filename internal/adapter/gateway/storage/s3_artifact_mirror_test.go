package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wassup-/textpod/internal/application/port/output"
)

func TestS3ArtifactMirror_Mirror(t *testing.T) {
	mockClient := NewMockS3Client()
	mirror := NewS3ArtifactMirrorWithClient(mockClient, "test-bucket", "textpod/prod")

	location, err := mirror.Mirror(context.Background(), output.MirrorRequest{
		Key:         "webpages/example.com_article.html",
		Content:     []byte("<html>snapshot</html>"),
		ContentType: "text/html",
		Metadata:    map[string]string{"note-id": "2025-11-03/4"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://test-bucket/textpod/prod/artifacts/webpages/example.com_article.html", location)
	assert.Equal(t, 1, mockClient.ObjectCount())

	content, metadata, ok := mockClient.StoredObject("textpod/prod/artifacts/webpages/example.com_article.html")
	require.True(t, ok)
	assert.Equal(t, "<html>snapshot</html>", string(content))
	assert.Equal(t, "2025-11-03/4", metadata["note-id"])
	assert.NotEmpty(t, metadata["mirrored-at"])
}

func TestS3ArtifactMirror_Mirror_NoPrefix(t *testing.T) {
	mockClient := NewMockS3Client()
	mirror := NewS3ArtifactMirrorWithClient(mockClient, "test-bucket", "")

	location, err := mirror.Mirror(context.Background(), output.MirrorRequest{
		Key:     "media/video.example_clip",
		Content: []byte("data"),
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://test-bucket/artifacts/media/video.example_clip", location)
}

func TestS3ArtifactMirror_Mirror_EmptyKey(t *testing.T) {
	mirror := NewS3ArtifactMirrorWithClient(NewMockS3Client(), "test-bucket", "")

	_, err := mirror.Mirror(context.Background(), output.MirrorRequest{Content: []byte("data")})
	assert.Error(t, err)
}

func TestS3ArtifactMirror_Mirror_UploadError(t *testing.T) {
	mockClient := NewMockS3Client()
	mockClient.PutErr = errors.New("access denied")
	mirror := NewS3ArtifactMirrorWithClient(mockClient, "test-bucket", "")

	_, err := mirror.Mirror(context.Background(), output.MirrorRequest{
		Key:     "webpages/a.html",
		Content: []byte("data"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
